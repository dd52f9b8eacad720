package domain

import (
	"strings"
	"time"
)

// NotificationType classifies a feed entry.
type NotificationType string

// Notification types.
const (
	NotificationSuccess NotificationType = "success"
	NotificationInfo    NotificationType = "info"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
)

// Notification is one entry in the append-only notification feed.
type Notification struct {
	ID        int64
	Title     string
	Message   string
	Type      NotificationType
	Timestamp time.Time
	Read      bool
	DealID    int64
}

// NotificationInput holds values for pushing a notification.
type NotificationInput struct {
	Title   string
	Message string
	Type    NotificationType
	DealID  int64
}

// NewNotification constructs an unread notification.
func NewNotification(id int64, in NotificationInput, now time.Time) (Notification, error) {
	if id <= 0 {
		return Notification{}, ErrInvalidID
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Notification{}, ErrInvalidTitle
	}
	return Notification{
		ID:        id,
		Title:     title,
		Message:   strings.TrimSpace(in.Message),
		Type:      NormalizeNotificationType(in.Type),
		Timestamp: now.UTC(),
		DealID:    in.DealID,
	}, nil
}

// NormalizeNotificationType canonicalizes a type and defaults to info.
func NormalizeNotificationType(t NotificationType) NotificationType {
	switch NotificationType(strings.ToLower(strings.TrimSpace(string(t)))) {
	case NotificationSuccess:
		return NotificationSuccess
	case NotificationWarning:
		return NotificationWarning
	case NotificationError:
		return NotificationError
	default:
		return NotificationInfo
	}
}
