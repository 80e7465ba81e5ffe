// Package scheduler reconciles persisted unlock state with the access
// rules: a debounced per-user pass aligning override sets with the
// day countdown, and a periodic content-level pass applying scheduled
// unlock dates.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andersonlima/membergate/backend/internal/access"
	"github.com/andersonlima/membergate/backend/internal/config"
	"github.com/andersonlima/membergate/backend/internal/events"
	"github.com/andersonlima/membergate/backend/internal/metrics"
	"github.com/andersonlima/membergate/backend/internal/notification"
	"github.com/andersonlima/membergate/backend/internal/repository"
)

// Scheduler owns the two reconciliation passes. All state, including
// the processed-unlock guard and the debounce timers, lives on the
// instance so schedulers in tests do not interfere.
type Scheduler struct {
	users    repository.UserRepository
	content  repository.ContentRepository
	notifier *notification.Service
	bus      events.EventBus
	cfg      config.SchedulerConfig
	logger   *slog.Logger
	now      func() time.Time

	stopChan    chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
	unsubscribe func()

	// debounce timers per reconcile key ("" reconciles everyone)
	timersMu sync.Mutex
	timers   map[string]*time.Timer

	// in-process guard: scheduled unlocks already applied this
	// lifetime, so an overlapping pass cannot re-fire notifications
	processedMu sync.Mutex
	processed   map[uuid.UUID]struct{}
}

// NewScheduler creates a new Scheduler instance
func NewScheduler(
	users repository.UserRepository,
	content repository.ContentRepository,
	notifier *notification.Service,
	bus events.EventBus,
	cfg config.SchedulerConfig,
	logger *slog.Logger,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ScheduledUnlockInterval <= 0 {
		cfg.ScheduledUnlockInterval = 5 * time.Minute
	}
	if cfg.ReconcileDebounce <= 0 {
		cfg.ReconcileDebounce = time.Second
	}
	if cfg.UnlockNotifyCap <= 0 {
		cfg.UnlockNotifyCap = 3
	}
	if cfg.LockNotifyCap <= 0 {
		cfg.LockNotifyCap = 2
	}

	return &Scheduler{
		users:     users,
		content:   content,
		notifier:  notifier,
		bus:       bus,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		timers:    make(map[string]*time.Timer),
		processed: make(map[uuid.UUID]struct{}),
	}
}

// Start launches the periodic content-level pass and subscribes the
// per-user pass to access-change events
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	s.running = true
	s.stopChan = make(chan struct{})

	if s.bus != nil {
		s.unsubscribe = s.bus.SubscribeType(events.EventTypeAccessChanged, func(e events.Event) {
			s.ScheduleReconcile(e.UserID)
		})
	}

	s.wg.Add(1)
	go s.run()

	s.logger.Info("Unlock scheduler started",
		"interval", s.cfg.ScheduledUnlockInterval,
		"startup_delay", s.cfg.StartupDelay,
		"debounce", s.cfg.ReconcileDebounce)
	return nil
}

// Stop halts the scheduler and waits for in-flight passes to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.mu.Unlock()

	s.timersMu.Lock()
	for key, timer := range s.timers {
		timer.Stop()
		delete(s.timers, key)
	}
	s.timersMu.Unlock()

	s.wg.Wait()
	s.logger.Info("Unlock scheduler stopped")
}

// IsRunning reports whether the scheduler is active
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// ScheduleReconcile queues a debounced per-user pass. An empty userID
// reconciles every non-admin user, as after a content rule change.
// Repeated triggers within the debounce window coalesce into one run.
func (s *Scheduler) ScheduleReconcile(userID string) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	if timer, exists := s.timers[userID]; exists {
		timer.Reset(s.cfg.ReconcileDebounce)
		return
	}

	s.timers[userID] = time.AfterFunc(s.cfg.ReconcileDebounce, func() {
		s.timersMu.Lock()
		delete(s.timers, userID)
		s.timersMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if userID == "" {
			s.reconcileAll(ctx)
			return
		}
		id, err := uuid.Parse(userID)
		if err != nil {
			s.logger.Error("Invalid user id on access-change event", "user_id", userID)
			return
		}
		if err := s.ReconcileUser(ctx, id); err != nil {
			s.logger.Error("Per-user reconcile failed", "error", err, "user_id", userID)
		}
	})
}

// ReconcileUser aligns one user's override sets with the automatic
// rules: items whose countdown elapsed are granted, and overrides the
// rules would no longer produce are withdrawn. A write failure on one
// item is logged and the sweep continues. Notifications are capped per
// batch; transitions beyond the cap still apply, silently.
func (s *Scheduler) ReconcileUser(ctx context.Context, userID uuid.UUID) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if user.IsAdmin {
		return nil
	}

	items, err := s.content.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	metrics.SchedulerSweepsTotal.WithLabelValues("per_user").Inc()

	now := s.now().UTC()
	unlockNotified := 0
	lockNotified := 0

	for _, item := range items {
		if access.RuleConflict(item) {
			s.logger.Warn("Content item has conflicting unlock rules",
				"content_id", item.ID, "title", item.Title)
		}

		hasOverride := user.HasUnlocked(item.ID, item.Kind)

		switch {
		case access.AutoUnlocked(item, user, now) && !hasOverride:
			if err := s.users.GrantUnlock(ctx, userID, item.ID, item.Kind); err != nil {
				s.logger.Error("Failed to grant unlock", "error", err,
					"user_id", userID, "content_id", item.ID)
				continue
			}
			metrics.AccessTransitionsTotal.WithLabelValues("unlock").Inc()
			if unlockNotified < s.cfg.UnlockNotifyCap {
				s.notify(ctx, userID, repository.NotificationSuccess,
					"Content unlocked",
					fmt.Sprintf("%q is now available to you.", item.Title))
				unlockNotified++
			}

		case hasOverride && access.AutoLocked(item, user, now):
			if err := s.users.RevokeUnlock(ctx, userID, item.ID, item.Kind); err != nil {
				s.logger.Error("Failed to revoke unlock", "error", err,
					"user_id", userID, "content_id", item.ID)
				continue
			}
			metrics.AccessTransitionsTotal.WithLabelValues("lock").Inc()
			if lockNotified < s.cfg.LockNotifyCap {
				s.notify(ctx, userID, repository.NotificationWarning,
					"Content locked",
					fmt.Sprintf("%q is no longer available.", item.Title))
				lockNotified++
			}
		}
	}

	return nil
}

// RunScheduledPass applies every due scheduled unlock. Exposed for
// manual triggering; the periodic loop calls it on its cadence.
func (s *Scheduler) RunScheduledPass(ctx context.Context) {
	metrics.SchedulerSweepsTotal.WithLabelValues("scheduled").Inc()

	now := s.now().UTC()
	items, err := s.content.ListScheduledBefore(ctx, now)
	if err != nil {
		s.logger.Error("Failed to list scheduled unlocks", "error", err)
		return
	}

	for _, item := range items {
		if item.ManualUnlockOnly {
			// precedence: manual-only is never auto-unlocked
			s.logger.Warn("Skipping scheduled unlock of manual-only item",
				"content_id", item.ID, "title", item.Title)
			continue
		}
		s.applyScheduledUnlock(ctx, item)
	}
}

// applyScheduledUnlock flips one item exactly once per process
// lifetime and fans the notification out to every non-admin user
func (s *Scheduler) applyScheduledUnlock(ctx context.Context, item *repository.ContentItem) {
	s.processedMu.Lock()
	if _, done := s.processed[item.ID]; done {
		s.processedMu.Unlock()
		return
	}
	s.processed[item.ID] = struct{}{}
	s.processedMu.Unlock()

	applied, err := s.content.ApplyScheduledUnlock(ctx, item.ID)
	if err != nil {
		s.logger.Error("Failed to apply scheduled unlock", "error", err, "content_id", item.ID)
		// allow a later pass to retry
		s.processedMu.Lock()
		delete(s.processed, item.ID)
		s.processedMu.Unlock()
		return
	}
	if !applied {
		// another writer got there first; no notifications
		return
	}

	s.logger.Info("Scheduled unlock applied", "content_id", item.ID, "title", item.Title)
	s.publishAccessChanged(item.ID, "scheduled_unlock")

	users, err := s.users.ListNonAdmins(ctx)
	if err != nil {
		s.logger.Error("Failed to list users for unlock fan-out", "error", err, "content_id", item.ID)
		return
	}

	for _, u := range users {
		s.notify(ctx, u.ID, repository.NotificationSuccess,
			"New content available",
			fmt.Sprintf("%q has been unlocked for everyone.", item.Title))
	}
}

// reconcileAll runs the per-user pass for every non-admin user
func (s *Scheduler) reconcileAll(ctx context.Context) {
	users, err := s.users.ListNonAdmins(ctx)
	if err != nil {
		s.logger.Error("Failed to list users for reconcile", "error", err)
		return
	}

	for _, u := range users {
		if err := s.ReconcileUser(ctx, u.ID); err != nil {
			s.logger.Error("Per-user reconcile failed", "error", err, "user_id", u.ID)
		}
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	// short delay so the first pass does not race startup
	select {
	case <-time.After(s.cfg.StartupDelay):
	case <-s.stopChan:
		return
	}

	s.scheduledPass()

	ticker := time.NewTicker(s.cfg.ScheduledUnlockInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.scheduledPass()
		case <-s.stopChan:
			return
		}
	}
}

func (s *Scheduler) scheduledPass() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	s.RunScheduledPass(ctx)
}

// publishAccessChanged broadcasts a rule change to every subscriber.
// The scheduler's own subscription picks it up and queues a reconcile
// of all users.
func (s *Scheduler) publishAccessChanged(contentID uuid.UUID, reason string) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(events.AccessChangedEvent{
		Reason:    reason,
		ContentID: contentID.String(),
		ChangedAt: s.now().UTC(),
	})
	if err != nil {
		s.logger.Error("Failed to encode access-change event", "error", err, "content_id", contentID)
		return
	}
	event := events.Event{
		ID:        uuid.New().String(),
		Type:      events.EventTypeAccessChanged,
		Data:      payload,
		Timestamp: s.now().UTC(),
	}
	if err := s.bus.Publish(event); err != nil {
		s.logger.Error("Failed to publish access-change event", "error", err, "content_id", contentID)
	}
}

func (s *Scheduler) notify(ctx context.Context, userID uuid.UUID, notifType, title, message string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, userID, notifType, title, message)
}
