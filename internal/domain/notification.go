package domain

import "time"

// NotificationType classifies the quote event a notification describes.
type NotificationType string

const (
	NotificationQuoteResponse NotificationType = "quote_response"
	NotificationQuoteRejected NotificationType = "quote_rejected"
	NotificationDocumentReady NotificationType = "document_ready"
	NotificationGeneral       NotificationType = "general"
)

// Notification is one delivery-worthy event addressed to exactly one user.
// CreatedAt is assigned by the repository at write time and is the
// authoritative ordering for dedup. Read is monotonic false->true.
// Triggered distinguishes records that should produce an active alert from
// passive audit entries.
type Notification struct {
	NotificationID string           `json:"id" dynamodbav:"notification_id"`
	UserID         string           `json:"user_id" dynamodbav:"user_id"`
	Type           NotificationType `json:"type" dynamodbav:"type"`
	Title          string           `json:"title" dynamodbav:"title"`
	Message        string           `json:"message" dynamodbav:"message"`
	QuoteID        *string          `json:"quote_id,omitempty" dynamodbav:"quote_id"`
	InsuranceType  *InsuranceType   `json:"insurance_type,omitempty" dynamodbav:"insurance_type"`
	Price          *string          `json:"price,omitempty" dynamodbav:"price"`
	Reason         *string          `json:"reason,omitempty" dynamodbav:"reason"`
	DocumentURL    *string          `json:"document_url,omitempty" dynamodbav:"document_url"`
	Read           bool             `json:"read" dynamodbav:"read"`
	Triggered      bool             `json:"triggered" dynamodbav:"triggered"`
	CreatedAt      time.Time        `json:"created" dynamodbav:"created_at"`
}

type BroadcastRequest struct {
	UserIDs []string `json:"user_ids"` // empty = all enabled users
	Title   string   `json:"title" validate:"required"`
	Message string   `json:"message" validate:"required"`
}
