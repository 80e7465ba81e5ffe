// Package session owns the login lifecycle: credential checks,
// session records, the security audit trail, and admin termination.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/andersonlima/membergate/backend/internal/auth"
	"github.com/andersonlima/membergate/backend/internal/config"
	"github.com/andersonlima/membergate/backend/internal/events"
	"github.com/andersonlima/membergate/backend/internal/lookup"
	"github.com/andersonlima/membergate/backend/internal/metrics"
	"github.com/andersonlima/membergate/backend/internal/repository"
)

// Login errors
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountBlocked     = errors.New("account is blocked")
)

// Manager coordinates authentication, session records, and the
// security log. All audit entries originate here.
type Manager struct {
	users       repository.UserRepository
	sessions    repository.SessionRepository
	secLog      repository.SecurityLogRepository
	hasher      *auth.PasswordHasher
	tokens      *auth.TokenService
	geo         lookup.GeoClient
	bus         events.EventBus
	admin       config.AdminConfig
	ipThreshold int
	logger      *slog.Logger
	now         func() time.Time
}

// ManagerConfig holds the dependencies for a Manager
type ManagerConfig struct {
	Users       repository.UserRepository
	Sessions    repository.SessionRepository
	SecurityLog repository.SecurityLogRepository
	Hasher      *auth.PasswordHasher
	Tokens      *auth.TokenService
	Geo         lookup.GeoClient
	Bus         events.EventBus
	Admin       config.AdminConfig
	// IPThreshold is the number of distinct active IPs above which a
	// login triggers the observational multiple-IPs audit entry.
	IPThreshold int
	Logger      *slog.Logger
}

// NewManager creates a new session Manager instance
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	geo := cfg.Geo
	if geo == nil {
		geo = &lookup.StaticGeoClient{}
	}
	threshold := cfg.IPThreshold
	if threshold <= 0 {
		threshold = 2
	}
	return &Manager{
		users:       cfg.Users,
		sessions:    cfg.Sessions,
		secLog:      cfg.SecurityLog,
		hasher:      cfg.Hasher,
		tokens:      cfg.Tokens,
		geo:         geo,
		bus:         cfg.Bus,
		admin:       cfg.Admin,
		ipThreshold: threshold,
		logger:      logger,
		now:         time.Now,
	}
}

// LoginInput carries one login attempt
type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// LoginResult is a successful login outcome
type LoginResult struct {
	User    *repository.User
	Session *repository.UserSession
	Tokens  *auth.TokenPair
}

// Login authenticates a user and opens a session.
//
// The configured superuser credentials short-circuit every account
// check: the superuser can always get in, even to inspect a platform
// where something has gone wrong with regular accounts. Regular users
// are denied with an audit entry when blocked, and logins from a user
// already active on more than the threshold of distinct IPs append an
// observational audit entry without affecting the login.
func (m *Manager) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	if m.isSuperuser(input.Email, input.Password) {
		return m.loginSuperuser(ctx, input)
	}

	user, err := m.users.GetByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := m.hasher.VerifyPassword(input.Password, user.PasswordHash); err != nil {
		metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}

	if user.IsBlocked {
		details := "login denied: account is blocked"
		if user.BlockedReason != nil {
			details = fmt.Sprintf("login denied: account is blocked (%s)", *user.BlockedReason)
		}
		m.appendLog(ctx, &repository.SecurityLogEntry{
			UserID:    user.ID,
			Action:    repository.ActionBlocked,
			IPAddress: input.IPAddress,
			UserAgent: input.UserAgent,
			Details:   details,
			Severity:  repository.SeverityMedium,
		})
		metrics.LoginsTotal.WithLabelValues("blocked").Inc()
		return nil, ErrAccountBlocked
	}

	session, err := m.openSession(ctx, user, input)
	if err != nil {
		return nil, err
	}

	m.checkDistinctIPs(ctx, user.ID, input)

	m.appendLog(ctx, &repository.SecurityLogEntry{
		UserID:    user.ID,
		Action:    repository.ActionLogin,
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		Severity:  repository.SeverityLow,
	})

	tokens, err := m.tokens.GenerateTokenPair(user.ID.String(), user.Email, session.ID.String(), user.IsAdmin)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	metrics.ActiveSessions.Inc()

	return &LoginResult{User: user, Session: session, Tokens: tokens}, nil
}

// Refresh exchanges a valid refresh token for a new token pair. The
// backing session must still be active and the account unblocked.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	claims, err := m.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	session, err := m.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive {
		return nil, repository.ErrSessionInactive
	}

	userID, err := uuid.Parse(claims.UserID())
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	user, err := m.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsBlocked {
		return nil, ErrAccountBlocked
	}

	return m.tokens.GenerateTokenPair(user.ID.String(), user.Email, session.ID.String(), user.IsAdmin)
}

// Logout terminates the caller's session and appends the audit entry
func (m *Manager) Logout(ctx context.Context, sessionID, userID uuid.UUID, ipAddress, userAgent string) (*repository.UserSession, error) {
	session, err := m.sessions.Terminate(ctx, sessionID, m.now().UTC())
	if err != nil {
		return nil, err
	}

	m.appendLog(ctx, &repository.SecurityLogEntry{
		UserID:    userID,
		Action:    repository.ActionLogout,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Severity:  repository.SeverityLow,
	})

	metrics.SessionsTerminated.WithLabelValues("logout").Inc()
	metrics.ActiveSessions.Dec()

	return session, nil
}

// Heartbeat refreshes the session's last-activity marker. The cadence
// is advisory; a stale session is never evicted for missing beats.
func (m *Manager) Heartbeat(ctx context.Context, sessionID uuid.UUID) error {
	return m.sessions.Touch(ctx, sessionID, m.now().UTC())
}

// ListUserSessions retrieves a user's sessions, newest-first
func (m *Manager) ListUserSessions(ctx context.Context, userID uuid.UUID, activeOnly bool) ([]*repository.UserSession, error) {
	if activeOnly {
		return m.sessions.ListActiveByUser(ctx, userID)
	}
	return m.sessions.ListByUser(ctx, userID, 0)
}

// Terminate ends one session by admin action. The audit entry carries
// the acting admin; the user's live clients are told to re-login.
func (m *Manager) Terminate(ctx context.Context, sessionID, adminID uuid.UUID) (*repository.UserSession, error) {
	session, err := m.sessions.Terminate(ctx, sessionID, m.now().UTC())
	if err != nil {
		return nil, err
	}

	m.appendLog(ctx, &repository.SecurityLogEntry{
		UserID:    session.UserID,
		Action:    repository.ActionSuspiciousActivity,
		IPAddress: session.IPAddress,
		UserAgent: session.UserAgent,
		Details:   "session terminated by administrator",
		Severity:  repository.SeverityMedium,
		AdminID:   &adminID,
	})

	m.publishSessionTerminated(session.UserID, session.ID)

	metrics.SessionsTerminated.WithLabelValues("admin").Inc()
	metrics.ActiveSessions.Dec()

	return session, nil
}

// TerminateAll ends every active session of a user by admin action
// and returns the terminated count
func (m *Manager) TerminateAll(ctx context.Context, userID, adminID uuid.UUID) (int64, error) {
	count, err := m.sessions.TerminateAllByUser(ctx, userID, m.now().UTC())
	if err != nil {
		return 0, err
	}

	m.appendLog(ctx, &repository.SecurityLogEntry{
		UserID:   userID,
		Action:   repository.ActionSuspiciousActivity,
		Details:  fmt.Sprintf("all sessions terminated by administrator (%d sessions)", count),
		Severity: repository.SeverityHigh,
		AdminID:  &adminID,
	})

	m.publishSessionTerminated(userID, uuid.Nil)

	metrics.SessionsTerminated.WithLabelValues("admin").Add(float64(count))
	metrics.ActiveSessions.Sub(float64(count))

	return count, nil
}

// BlockUser blocks an account, ends its sessions, and appends the
// audit entry
func (m *Manager) BlockUser(ctx context.Context, userID, adminID uuid.UUID, reason string) error {
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}

	if err := m.users.SetBlocked(ctx, userID, true, reasonPtr); err != nil {
		return err
	}

	count, err := m.sessions.TerminateAllByUser(ctx, userID, m.now().UTC())
	if err != nil {
		m.logger.Error("Failed to terminate sessions of blocked user", "error", err, "user_id", userID)
	}

	details := fmt.Sprintf("account blocked by administrator (%d sessions terminated)", count)
	if reason != "" {
		details = fmt.Sprintf("account blocked by administrator: %s (%d sessions terminated)", reason, count)
	}
	m.appendLog(ctx, &repository.SecurityLogEntry{
		UserID:   userID,
		Action:   repository.ActionBlocked,
		Details:  details,
		Severity: repository.SeverityMedium,
		AdminID:  &adminID,
	})

	if m.bus != nil {
		payload, err := json.Marshal(events.UserBlockedEvent{Reason: reason, BlockedAt: m.now().UTC()})
		if err == nil {
			m.publish(events.Event{
				ID:        uuid.New().String(),
				Type:      events.EventTypeUserBlocked,
				UserID:    userID.String(),
				Data:      payload,
				Timestamp: m.now().UTC(),
			})
		}
	}

	return nil
}

// UnblockUser lifts an account block and appends the audit entry
func (m *Manager) UnblockUser(ctx context.Context, userID, adminID uuid.UUID) error {
	if err := m.users.SetBlocked(ctx, userID, false, nil); err != nil {
		return err
	}

	m.appendLog(ctx, &repository.SecurityLogEntry{
		UserID:   userID,
		Action:   repository.ActionUnblocked,
		Details:  "account unblocked by administrator",
		Severity: repository.SeverityLow,
		AdminID:  &adminID,
	})

	return nil
}

func (m *Manager) isSuperuser(email, password string) bool {
	if m.admin.Email == "" || m.admin.PasswordHash == "" {
		return false
	}
	if !strings.EqualFold(email, m.admin.Email) {
		return false
	}
	return m.hasher.VerifyPassword(password, m.admin.PasswordHash) == nil
}

// loginSuperuser opens a session for the configured superuser without
// the blocked or multiple-IP checks. The account record must exist.
func (m *Manager) loginSuperuser(ctx context.Context, input LoginInput) (*LoginResult, error) {
	user, err := m.users.GetByEmail(ctx, m.admin.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			m.logger.Error("Superuser credentials matched but account record is missing", "email", m.admin.Email)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up superuser: %w", err)
	}

	session, err := m.openSession(ctx, user, input)
	if err != nil {
		return nil, err
	}

	m.appendLog(ctx, &repository.SecurityLogEntry{
		UserID:    user.ID,
		Action:    repository.ActionLogin,
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		Details:   "superuser login",
		Severity:  repository.SeverityLow,
	})

	tokens, err := m.tokens.GenerateTokenPair(user.ID.String(), user.Email, session.ID.String(), true)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	return &LoginResult{User: user, Session: session, Tokens: tokens}, nil
}

func (m *Manager) openSession(ctx context.Context, user *repository.User, input LoginInput) (*repository.UserSession, error) {
	device, browser := lookup.ParseUserAgent(input.UserAgent)

	session := &repository.UserSession{
		UserID:    user.ID,
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		Device:    device,
		Browser:   browser,
		Location:  m.geo.Locate(ctx, input.IPAddress),
		LoginTime: m.now().UTC(),
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// checkDistinctIPs appends the observational multiple-IPs entry when
// the user's active sessions span more than the threshold of distinct
// origins. The login itself is unaffected.
func (m *Manager) checkDistinctIPs(ctx context.Context, userID uuid.UUID, input LoginInput) {
	distinctIPs, err := m.sessions.CountDistinctActiveIPs(ctx, userID)
	if err != nil {
		m.logger.Error("Failed to count distinct IPs", "error", err, "user_id", userID)
		return
	}

	if distinctIPs > m.ipThreshold {
		m.appendLog(ctx, &repository.SecurityLogEntry{
			UserID:    userID,
			Action:    repository.ActionMultipleIPs,
			IPAddress: input.IPAddress,
			UserAgent: input.UserAgent,
			Details:   fmt.Sprintf("active sessions from %d distinct IP addresses", distinctIPs),
			Severity:  repository.SeverityHigh,
		})
	}
}

// appendLog writes an audit entry. A failed append is logged and
// swallowed so auditing can never break a login or termination.
func (m *Manager) appendLog(ctx context.Context, entry *repository.SecurityLogEntry) {
	entry.Timestamp = m.now().UTC()
	if err := m.secLog.Append(ctx, entry); err != nil {
		m.logger.Error("Failed to append security log entry",
			"error", err, "action", entry.Action, "user_id", entry.UserID)
		return
	}
	metrics.SecurityEventsTotal.WithLabelValues(string(entry.Action), string(entry.Severity)).Inc()
}

func (m *Manager) publishSessionTerminated(userID, sessionID uuid.UUID) {
	if m.bus == nil {
		return
	}

	sid := ""
	if sessionID != uuid.Nil {
		sid = sessionID.String()
	}
	payload, err := json.Marshal(events.SessionTerminatedEvent{
		SessionID:    sid,
		TerminatedAt: m.now().UTC(),
	})
	if err != nil {
		return
	}

	m.publish(events.Event{
		ID:        uuid.New().String(),
		Type:      events.EventTypeSessionTerminated,
		UserID:    userID.String(),
		Data:      payload,
		Timestamp: m.now().UTC(),
	})
}

func (m *Manager) publish(event events.Event) {
	if err := m.bus.Publish(event); err != nil {
		m.logger.Error("Failed to publish event", "error", err, "type", event.Type)
	}
}
