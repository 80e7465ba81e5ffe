package events

import "time"

// Event type constants
const (
	EventTypeConnected         = "connected"
	EventTypeHeartbeat         = "heartbeat"
	EventTypeAccessChanged     = "access_changed"
	EventTypeContentUnlocked   = "content_unlocked"
	EventTypeContentLocked     = "content_locked"
	EventTypeNotification      = "notification"
	EventTypeSessionTerminated = "session_terminated"
	EventTypeUserBlocked       = "user_blocked"
	EventTypeError             = "error"
)

// ConnectedEvent is sent when a client establishes an SSE connection.
type ConnectedEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// HeartbeatEvent is sent periodically to keep the connection alive.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// AccessChangedEvent signals that a user's effective access may have
// drifted and the scheduler should reconcile that user. An empty
// UserID on the carrying Event means every user is affected, as after
// a content rule change.
type AccessChangedEvent struct {
	Reason    string    `json:"reason"`
	ContentID string    `json:"content_id,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

// ContentUnlockedEvent is sent when a content item opens for a user.
type ContentUnlockedEvent struct {
	ContentID  string    `json:"content_id"`
	Title      string    `json:"title"`
	Kind       string    `json:"kind"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// ContentLockedEvent is sent when access to a content item is withdrawn.
type ContentLockedEvent struct {
	ContentID string    `json:"content_id"`
	Title     string    `json:"title"`
	Kind      string    `json:"kind"`
	LockedAt  time.Time `json:"locked_at"`
}

// NotificationEvent mirrors a persisted notification for live delivery.
type NotificationEvent struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionTerminatedEvent is sent when a session ends by admin action,
// so an open client can drop to the login screen.
type SessionTerminatedEvent struct {
	SessionID    string    `json:"session_id"`
	TerminatedAt time.Time `json:"terminated_at"`
}

// UserBlockedEvent is sent when an account is blocked while the user
// has a live connection.
type UserBlockedEvent struct {
	Reason    string    `json:"reason"`
	BlockedAt time.Time `json:"blocked_at"`
}

// ErrorEvent is sent when an error occurs.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
