package repository

import (
	"time"

	"github.com/google/uuid"
)

// ContentKind distinguishes the two catalog variants. Courses and
// products share one shape; only the kind tag differs.
type ContentKind string

const (
	KindCourse  ContentKind = "course"
	KindProduct ContentKind = "product"
)

// SecurityAction identifies the kind of security log entry
type SecurityAction string

const (
	ActionLogin              SecurityAction = "login"
	ActionLogout             SecurityAction = "logout"
	ActionBlocked            SecurityAction = "blocked"
	ActionUnblocked          SecurityAction = "unblocked"
	ActionSuspiciousActivity SecurityAction = "suspicious_activity"
	ActionMultipleIPs        SecurityAction = "multiple_ips"
)

// Severity tags a security log entry with its urgency
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// User represents a member account in the database
type User struct {
	ID               uuid.UUID   `db:"id"`
	Email            string      `db:"email"`
	PasswordHash     string      `db:"password_hash"`
	IsAdmin          bool        `db:"is_admin"`
	RegistrationDate time.Time   `db:"registration_date"`
	UnlockedCourses  []uuid.UUID `db:"unlocked_courses"`
	UnlockedProducts []uuid.UUID `db:"unlocked_products"`
	IsBlocked        bool        `db:"is_blocked"`
	BlockedReason    *string     `db:"blocked_reason"`
	BlockedAt        *time.Time  `db:"blocked_at"`
	CreatedAt        time.Time   `db:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at"`
}

// UnlockedSet returns the override set matching the item's kind.
// Membership here is the sole authority for per-user override access.
func (u *User) UnlockedSet(kind ContentKind) []uuid.UUID {
	if kind == KindProduct {
		return u.UnlockedProducts
	}
	return u.UnlockedCourses
}

// HasUnlocked reports whether the user holds an override for the item
func (u *User) HasUnlocked(itemID uuid.UUID, kind ContentKind) bool {
	for _, id := range u.UnlockedSet(kind) {
		if id == itemID {
			return true
		}
	}
	return false
}

// ContentItem represents a course or product; the unit of access control
type ContentItem struct {
	ID                  uuid.UUID   `db:"id"`
	Kind                ContentKind `db:"kind"`
	Title               string      `db:"title"`
	Description         *string     `db:"description"`
	IsBlocked           bool        `db:"is_blocked"`
	UnlockAfterDays     *int        `db:"unlock_after_days"`
	ManualUnlockOnly    bool        `db:"manual_unlock_only"`
	ScheduledUnlockDate *time.Time  `db:"scheduled_unlock_date"`
	UnblockLink         *string     `db:"unblock_link"`
	CreatedAt           time.Time   `db:"created_at"`
	UpdatedAt           time.Time   `db:"updated_at"`
}

// Topic is an ordered, independently activatable group of lessons
type Topic struct {
	ID        uuid.UUID `db:"id"`
	ContentID uuid.UUID `db:"content_id"`
	Title     string    `db:"title"`
	Position  int       `db:"position"`
	IsActive  bool      `db:"is_active"`
}

// Lesson is a single playable unit inside a content item
type Lesson struct {
	ID        uuid.UUID  `db:"id"`
	ContentID uuid.UUID  `db:"content_id"`
	TopicID   *uuid.UUID `db:"topic_id"`
	Title     string     `db:"title"`
	MediaRef  string     `db:"media_ref"`
	Notes     *string    `db:"notes"`
	Position  int        `db:"position"`
}

// LessonMaterial is a supplementary file attached to a lesson,
// stored in object storage and served via presigned URL
type LessonMaterial struct {
	ID         uuid.UUID `db:"id"`
	LessonID   uuid.UUID `db:"lesson_id"`
	Title      string    `db:"title"`
	StorageKey string    `db:"storage_key"`
	SizeBytes  int64     `db:"size_bytes"`
	CreatedAt  time.Time `db:"created_at"`
}

// UserSession represents one authenticated login lifetime.
// A session that has been terminated is immutable.
type UserSession struct {
	ID              uuid.UUID  `db:"id"`
	UserID          uuid.UUID  `db:"user_id"`
	IPAddress       string     `db:"ip_address"`
	UserAgent       string     `db:"user_agent"`
	Device          string     `db:"device"`
	Browser         string     `db:"browser"`
	Location        string     `db:"location"`
	LoginTime       time.Time  `db:"login_time"`
	LastActivity    time.Time  `db:"last_activity"`
	IsActive        bool       `db:"is_active"`
	LogoutTime      *time.Time `db:"logout_time"`
	DurationMinutes *int       `db:"duration_minutes"`
}

// SecurityLogEntry is one append-only audit record. Entries are never
// mutated or deleted by normal flow.
type SecurityLogEntry struct {
	ID        uuid.UUID      `db:"id"`
	UserID    uuid.UUID      `db:"user_id"`
	Action    SecurityAction `db:"action"`
	IPAddress string         `db:"ip_address"`
	UserAgent string         `db:"user_agent"`
	Timestamp time.Time      `db:"timestamp"`
	Details   string         `db:"details"`
	Severity  Severity       `db:"severity"`
	AdminID   *uuid.UUID     `db:"admin_id"`
}

// SecurityLogFilter holds query parameters for the security log.
// Results are always newest-first.
type SecurityLogFilter struct {
	UserID   *uuid.UUID
	Action   *SecurityAction
	Severity *Severity
	Page     int
	Limit    int
}

// Notification is a persisted per-user notification
type Notification struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	Title     string    `db:"title"`
	Message   string    `db:"message"`
	Type      string    `db:"type"`
	IsRead    bool      `db:"is_read"`
	CreatedAt time.Time `db:"created_at"`
}

// Notification type values
const (
	NotificationSuccess = "success"
	NotificationInfo    = "info"
	NotificationWarning = "warning"
)

// Favorite marks a content item a user has favorited
type Favorite struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	ContentID uuid.UUID `db:"content_id"`
	CreatedAt time.Time `db:"created_at"`
}

// WatchHistory tracks per-(user, content) viewing progress
type WatchHistory struct {
	ID               uuid.UUID   `db:"id"`
	UserID           uuid.UUID   `db:"user_id"`
	ContentID        uuid.UUID   `db:"content_id"`
	CompletedLessons []uuid.UUID `db:"completed_lessons"`
	WatchTimeMinutes int         `db:"watch_time_minutes"`
	UpdatedAt        time.Time   `db:"updated_at"`
}
