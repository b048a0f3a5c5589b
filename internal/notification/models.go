package notification

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Notification is the durable record written once per (recipient, event) at
// fan-out time. It is the recipient's fallback when no live connection is up.
type Notification struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RecipientID       string             `bson:"recipient_id" json:"recipientId"`
	Message           string             `bson:"message" json:"message"`                                       // Fully rendered at creation, no further templating
	RelatedResourceID string             `bson:"related_resource_id,omitempty" json:"relatedResourceId,omitempty"` // Weak reference: lookup only, no ownership
	Read              bool               `bson:"read" json:"read"`
	CreatedAt         time.Time          `bson:"created_at" json:"createdAt"`
}

// Why: records are mutated only by the recipient marking them read and are
// never deleted by this subsystem; retention belongs to an external pruner.
