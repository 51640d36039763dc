package storage

import (
	"context"
	"time"

	"instagram-webhook/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// ActivityArchive keeps one document per stored comment/message notification
// for downstream analytics.
type ActivityArchive struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

func NewActivityArchive(uri, database, collection string, logger *zap.Logger) (*ActivityArchive, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMaxConnIdleTime(30 * time.Second).
		SetConnectTimeout(10 * time.Second).
		SetSocketTimeout(30 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	logger.Info("Successfully connected to MongoDB",
		zap.String("database", database),
		zap.String("collection", collection),
	)

	coll := client.Database(database).Collection(collection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "notification_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "kind", Value: 1},
				{Key: "external_id", Value: 1},
			},
		},
		{
			Keys: bson.D{{Key: "occurred_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
	}

	if _, err = coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, err
	}

	return &ActivityArchive{
		client:     client,
		collection: coll,
		logger:     logger,
	}, nil
}

// Archive upserts the notification keyed by its id, so a redelivered
// queue message does not create a second document.
func (a *ActivityArchive) Archive(ctx context.Context, n *models.EventNotification, retries int) error {
	filter := bson.M{"notification_id": n.ID}

	set := bson.M{
		"delivery_id": n.DeliveryID,
		"kind":        n.Kind,
		"record_id":   n.RecordID,
		"external_id": n.ExternalID,
		"occurred_at": n.OccurredAt,
		"status":      models.ActivityStatusArchived,
		"retry_count": retries,
		"updated_at":  time.Now().UTC(),
	}
	if n.AccountID != "" {
		set["account_id"] = n.AccountID
	}
	if len(n.Payload) > 0 {
		// stored as a string; the payload shape drifts between API versions
		set["payload"] = string(n.Payload)
	}

	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"archived_at": time.Now().UTC()},
	}

	_, err := a.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		a.logger.Error("Failed to archive notification",
			zap.Error(err),
			zap.String("notification_id", n.ID),
			zap.String("kind", string(n.Kind)))
		return err
	}
	return nil
}

// MarkRetrying records that an archive attempt failed and another one is
// scheduled.
func (a *ActivityArchive) MarkRetrying(ctx context.Context, n *models.EventNotification, retries int, cause error) error {
	return a.markStatus(ctx, n, models.ActivityStatusRetrying, retries, cause)
}

// MarkFailed records a notification the worker gave up on.
func (a *ActivityArchive) MarkFailed(ctx context.Context, n *models.EventNotification, retries int, cause error) error {
	return a.markStatus(ctx, n, models.ActivityStatusFailed, retries, cause)
}

func (a *ActivityArchive) markStatus(ctx context.Context, n *models.EventNotification, status models.ActivityStatus, retries int, cause error) error {
	filter := bson.M{"notification_id": n.ID}

	set := bson.M{
		"kind":        n.Kind,
		"external_id": n.ExternalID,
		"occurred_at": n.OccurredAt,
		"status":      status,
		"retry_count": retries,
		"updated_at":  time.Now().UTC(),
	}
	if cause != nil {
		set["last_error"] = cause.Error()
	}

	_, err := a.collection.UpdateOne(ctx, filter, bson.M{"$set": set}, options.Update().SetUpsert(true))
	if err != nil {
		a.logger.Warn("Failed to update notification status",
			zap.Error(err),
			zap.String("notification_id", n.ID),
			zap.String("status", string(status)))
	}
	return err
}

// CountByKind reports archived documents per kind that occurred at or after
// since.
func (a *ActivityArchive) CountByKind(ctx context.Context, since time.Time) (map[models.NotificationKind]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"status":      models.ActivityStatusArchived,
			"occurred_at": bson.M{"$gte": since},
		}}},
		{{Key: "$group", Value: bson.M{"_id": "$kind", "count": bson.M{"$sum": 1}}}},
	}

	cursor, err := a.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Kind  models.NotificationKind `bson:"_id"`
		Count int64                   `bson:"count"`
	}
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	counts := make(map[models.NotificationKind]int64, len(rows))
	for _, r := range rows {
		counts[r.Kind] = r.Count
	}
	return counts, nil
}

func (a *ActivityArchive) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}
