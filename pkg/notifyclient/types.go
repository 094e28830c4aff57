package notifyclient

import (
	"encoding/json"
	"time"
)

// Notification mirrors the server's notification record.
type Notification struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Kind      string          `json:"kind,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Read      bool            `json:"is_read"`
	ReadAt    *time.Time      `json:"read_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Page is one page of notifications plus the authoritative unread count.
type Page struct {
	Notifications []Notification `json:"notifications"`
	Total         int64          `json:"total"`
	Page          int            `json:"page"`
	Limit         int            `json:"limit"`
	TotalPages    int            `json:"total_pages"`
	UnreadCount   int64          `json:"unread_count"`
	HasMore       bool           `json:"has_more"`
}

// ListOptions filters a list request. Zero values use server defaults.
type ListOptions struct {
	Page       int
	Limit      int
	UnreadOnly bool
	Types      []string
}

// Stats summarises a user's notifications.
type Stats struct {
	Total    int64            `json:"total"`
	Unread   int64            `json:"unread"`
	ByType   map[string]int64 `json:"by_type"`
	LatestAt *time.Time       `json:"latest_at,omitempty"`
}

// Settings are the user's notification preferences.
type Settings struct {
	Language     string   `json:"language"`
	EmailEnabled bool     `json:"email_enabled"`
	InAppEnabled bool     `json:"in_app_enabled"`
	MutedTypes   []string `json:"muted_types"`
}

// SettingsUpdate is a partial settings change; nil fields are left unchanged.
type SettingsUpdate struct {
	Language     *string   `json:"language,omitempty"`
	EmailEnabled *bool     `json:"email_enabled,omitempty"`
	InAppEnabled *bool     `json:"in_app_enabled,omitempty"`
	MutedTypes   *[]string `json:"muted_types,omitempty"`
}

// WelcomeStatus is the public welcome probe result.
type WelcomeStatus struct {
	ShouldShowWelcome bool      `json:"should_show_welcome"`
	HasReceived       bool      `json:"has_received"`
	UserName          string    `json:"user_name"`
	UserID            string    `json:"user_id"`
	Timestamp         time.Time `json:"timestamp"`
	RateLimited       bool      `json:"rate_limited"`
}

// BonusResult is the outcome of a bonus claim. Success is false with a
// Message when the bonus was already claimed.
type BonusResult struct {
	Success  bool   `json:"success"`
	Coins    int64  `json:"coins,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	UserName string `json:"user_name,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Live event names pushed on the notifications stream.
const (
	EventCreated = "notification.created"
	EventRead    = "notification.read"
	EventReadAll = "notification.read_all"
	EventDeleted = "notification.deleted"
	EventCleared = "notification.cleared"
)

// Event is a live-push update for the signed-in user.
type Event struct {
	Name           string
	Notification   *Notification
	NotificationID string
	UnreadCount    *int64
}
