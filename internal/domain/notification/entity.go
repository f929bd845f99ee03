// internal/domain/notification/entity.go
package notification

import (
	"time"
)

type NotificationType string

const (
	TypeRenewalSuccess NotificationType = "renewal_success"
	TypeRenewalFailure NotificationType = "renewal_failure"
	TypeEscalation     NotificationType = "escalation"
)

// Notification is the fire-and-forget event handed to the delivery
// subsystem. Delivery itself (email, push, in-app) lives outside this
// service; rows written here form its outbox.
type Notification struct {
	ID          int64                  `json:"id" db:"id"`
	RecipientID int64                  `json:"recipient_id" db:"recipient_id"`
	Title       string                 `json:"title" db:"title"`
	Body        string                 `json:"body" db:"body"`
	Type        NotificationType       `json:"type" db:"type"`
	Channels    []string               `json:"channels" db:"channels"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time              `json:"created_at" db:"created_at"`
}
