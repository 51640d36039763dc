package payload

// Subscription fields Instagram delivers through entry.changes.
const (
	FieldComments         = "comments"
	FieldLiveComments     = "live_comments"
	FieldMentions         = "mentions"
	FieldMessages         = "messages"
	FieldMessageReactions = "message_reactions"
	FieldStoryInsights    = "story_insights"

	// FieldMessaging labels entry.messaging items, which carry no field name.
	FieldMessaging = "messaging"
)

type ItemKind string

const (
	KindComment ItemKind = "comment"
	KindMessage ItemKind = "message"
	KindStub    ItemKind = "stub"
	KindUnknown ItemKind = "unknown"
)

// Item is the dispatch result for one change or messaging element. Exactly
// one of Comment, Message or Stub is set for the matching Kind; Err is set
// when required fields were missing.
type Item struct {
	Field   string
	Kind    ItemKind
	Comment *CommentFields
	Message *MessageFields
	Stub    *StubFields
	Err     error
}

// DispatchChange routes a change to its extractor by field name. Unknown
// fields come back as KindUnknown so new Instagram event types are ignored
// rather than rejected.
func DispatchChange(ch Change) Item {
	item := Item{Field: ch.Field}

	switch ch.Field {
	case FieldComments:
		c, err := ExtractComment(ch.Value)
		item.Kind, item.Comment, item.Err = KindComment, &c, err
	case FieldMessages:
		m, err := ExtractMessage(ch.Value)
		item.Kind, item.Message, item.Err = KindMessage, &m, err
	case FieldLiveComments, FieldMentions, FieldMessageReactions, FieldStoryInsights:
		s := ExtractStub(ch.Field, ch.Value)
		item.Kind, item.Stub = KindStub, &s
	default:
		item.Kind = KindUnknown
	}

	return item
}

// DispatchMessaging extracts a direct message from an entry.messaging element.
func DispatchMessaging(v Value) Item {
	m, err := ExtractMessagingItem(v)
	return Item{Field: FieldMessaging, Kind: KindMessage, Message: &m, Err: err}
}
