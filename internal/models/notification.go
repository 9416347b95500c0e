package models

import "time"

// NotificationStatus is the lifecycle state of a scheduled notification.
type NotificationStatus string

const (
	StatusScheduled  NotificationStatus = "scheduled"
	StatusProcessing NotificationStatus = "processing"
	StatusCompleted  NotificationStatus = "completed"
	StatusError      NotificationStatus = "error"
)

// Valid reports whether s is a known status.
func (s NotificationStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusProcessing, StatusCompleted, StatusError:
		return true
	}
	return false
}

// CanTransition reports whether a record may move from one status to another.
// Records only move forward: scheduled -> processing -> completed|error.
func CanTransition(from, to NotificationStatus) bool {
	switch from {
	case StatusScheduled:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusError
	}
	return false
}

// ScheduledNotification is the persisted intent to notify a user that a
// watched auction has ended. Keyed by (UserID, ItemID).
type ScheduledNotification struct {
	UserID        string             `json:"userId"`
	ItemID        string             `json:"itemId"`
	CardName      string             `json:"cardName"`
	ScheduledTime time.Time          `json:"scheduledTime"`
	Status        NotificationStatus `json:"status"`
	Error         string             `json:"error,omitempty"`
	UpdatedAt     time.Time          `json:"-"`
}

// Key returns the deterministic record key.
func (n *ScheduledNotification) Key() string {
	return n.UserID + "_" + n.ItemID
}

// MailRecord is a message handed to the outbox.
type MailRecord struct {
	ID        string    `json:"id"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Text      string    `json:"text"`
	HTML      string    `json:"html"`
	CreatedAt time.Time `json:"createdAt"`
}
