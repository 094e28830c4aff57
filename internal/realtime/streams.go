package realtime

// StreamNotifications carries a user's notification lifecycle events.
const StreamNotifications = "notifications"

// Events published on StreamNotifications.
const (
	EventNotificationCreated = "notification.created"
	EventNotificationRead    = "notification.read"
	EventNotificationReadAll = "notification.read_all"
	EventNotificationDeleted = "notification.deleted"
	EventNotificationCleared = "notification.cleared"
)

// DefaultStreams are subscribed automatically when a client names none.
var DefaultStreams = []string{StreamNotifications}
