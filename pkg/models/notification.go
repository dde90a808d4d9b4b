package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/parcelpoint/parcelpoint-sync/pkg/enums"
)

// Notification is one in-app message addressed to a single user.
type Notification struct {
	ID        uuid.UUID              `json:"id"`
	UserID    uuid.UUID              `json:"user_id"`
	Type      enums.NotificationType `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	IsRead    bool                   `json:"is_read"`
	CreatedAt time.Time              `json:"created_at"`
}
