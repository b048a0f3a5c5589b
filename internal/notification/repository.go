package notification

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// NotificationRepository handles DB operations for durable notification records.
type NotificationRepository struct {
	collection *mongo.Collection
}

// NewNotificationRepository creates a new repository for notifications.
func NewNotificationRepository(db *mongo.Database) *NotificationRepository {
	return &NotificationRepository{collection: db.Collection("notifications")}
}

// InsertMany persists one record per recipient in a single round trip.
// Unordered: one bad record does not abort the rest of the batch, so a single
// recipient's failure never blocks delivery to the others.
func (r *NotificationRepository) InsertMany(ctx context.Context, records []*Notification) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]interface{}, len(records))
	for i, n := range records {
		docs[i] = n
	}
	_, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	return err
}

// FindByRecipient returns the recipient's records, newest first.
func (r *NotificationRepository) FindByRecipient(ctx context.Context, recipientID string, limit int64) ([]*Notification, error) {
	opts := options.Find().SetSort(bson.M{"created_at": -1})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cursor, err := r.collection.Find(ctx, bson.M{"recipient_id": recipientID}, opts)
	if err != nil {
		return nil, err
	}
	var records []*Notification
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// MarkRead flags the given records as read. The recipient filter stops one
// user from marking another's records.
func (r *NotificationRepository) MarkRead(ctx context.Context, ids []primitive.ObjectID, recipientID string) error {
	if len(ids) == 0 {
		return nil
	}
	filter := bson.M{"_id": bson.M{"$in": ids}, "recipient_id": recipientID}
	_, err := r.collection.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"read": true}})
	return err
}

// MarkAllRead flags every unread record of the recipient as read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID string) error {
	filter := bson.M{"recipient_id": recipientID, "read": false}
	_, err := r.collection.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"read": true}})
	return err
}
