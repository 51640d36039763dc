package payload

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrMalformed means the request body is not a JSON object. The webhook
// answers 400 and Instagram does not need to retry.
var ErrMalformed = errors.New("malformed webhook payload")

// Envelope is the top-level document Instagram posts to the callback URL.
type Envelope struct {
	Object  string
	Entries []Entry
	// Skipped counts entry/change/messaging elements that were not objects.
	Skipped int
	Raw     []byte
}

// Entry is one page/account section of a delivery.
type Entry struct {
	ID        string
	Time      int64
	Changes   []Change
	Messaging []Value
}

// Change is one field-subscription event. Value is left untyped on purpose:
// its shape differs per field and drifts between API versions.
type Change struct {
	Field string
	Value Value
}

// Parse decodes a webhook body. Missing "object" or "entry" keys produce an
// empty envelope rather than an error.
func Parse(body []byte) (*Envelope, error) {
	root, err := Decode(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if root.Kind() != Object {
		return nil, fmt.Errorf("%w: top-level value is %s, want object", ErrMalformed, root.Kind())
	}

	env := &Envelope{
		Object: root.Get("object").Text(),
		Raw:    body,
	}

	for _, rawEntry := range root.Get("entry").Items() {
		if rawEntry.Kind() != Object {
			env.Skipped++
			continue
		}

		entry := Entry{
			ID:   rawEntry.Get("id").Text(),
			Time: parseInt(rawEntry.Get("time")),
		}

		for _, rawChange := range rawEntry.Get("changes").Items() {
			if rawChange.Kind() != Object {
				env.Skipped++
				continue
			}
			entry.Changes = append(entry.Changes, Change{
				Field: rawChange.Get("field").Text(),
				Value: rawChange.Get("value"),
			})
		}

		for _, item := range rawEntry.Get("messaging").Items() {
			if item.Kind() != Object {
				env.Skipped++
				continue
			}
			entry.Messaging = append(entry.Messaging, item)
		}

		env.Entries = append(env.Entries, entry)
	}

	return env, nil
}

func parseInt(v Value) int64 {
	s := v.Text()
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}
