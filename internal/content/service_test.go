package content

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/andersonlima/membergate/backend/internal/access"
	"github.com/andersonlima/membergate/backend/internal/events"
	"github.com/andersonlima/membergate/backend/internal/repository"
)

type mockContentRepo struct {
	mu      sync.Mutex
	items   map[uuid.UUID]*repository.ContentItem
	topics  map[uuid.UUID][]repository.Topic
	lessons map[uuid.UUID][]repository.Lesson
}

func newMockContentRepo() *mockContentRepo {
	return &mockContentRepo{
		items:   make(map[uuid.UUID]*repository.ContentItem),
		topics:  make(map[uuid.UUID][]repository.Topic),
		lessons: make(map[uuid.UUID][]repository.Lesson),
	}
}

func (m *mockContentRepo) Create(ctx context.Context, item *repository.ContentItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *mockContentRepo) Update(ctx context.Context, item *repository.ContentItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[item.ID]; !ok {
		return repository.ErrContentNotFound
	}
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *mockContentRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, repository.ErrContentNotFound
	}
	cp := *item
	return &cp, nil
}

func (m *mockContentRepo) List(ctx context.Context) ([]*repository.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*repository.ContentItem
	for _, item := range m.items {
		cp := *item
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockContentRepo) ListScheduledBefore(ctx context.Context, cutoff time.Time) ([]*repository.ContentItem, error) {
	return nil, nil
}

func (m *mockContentRepo) ApplyScheduledUnlock(ctx context.Context, id uuid.UUID) (bool, error) {
	return false, nil
}

func (m *mockContentRepo) ListTopics(ctx context.Context, contentID uuid.UUID) ([]repository.Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.topics[contentID], nil
}

func (m *mockContentRepo) ListLessons(ctx context.Context, contentID uuid.UUID) ([]repository.Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lessons[contentID], nil
}

func (m *mockContentRepo) ListLessonMaterials(ctx context.Context, lessonID uuid.UUID) ([]repository.LessonMaterial, error) {
	return nil, nil
}

func (m *mockContentRepo) AddLessonMaterial(ctx context.Context, material *repository.LessonMaterial) error {
	return nil
}

func (m *mockContentRepo) DeleteLessonMaterial(ctx context.Context, lessonID, materialID uuid.UUID) (string, error) {
	return "", repository.ErrMaterialNotFound
}

type mockUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*repository.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[uuid.UUID]*repository.User)}
}

func (m *mockUserRepo) Create(ctx context.Context, user *repository.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	return nil, repository.ErrUserNotFound
}

func (m *mockUserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	return false, nil
}

func (m *mockUserRepo) List(ctx context.Context) ([]*repository.User, error) { return nil, nil }

func (m *mockUserRepo) ListNonAdmins(ctx context.Context) ([]*repository.User, error) {
	return nil, nil
}

func (m *mockUserRepo) GrantUnlock(ctx context.Context, userID, contentID uuid.UUID, kind repository.ContentKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	if kind == repository.KindProduct {
		u.UnlockedProducts = append(u.UnlockedProducts, contentID)
	} else {
		u.UnlockedCourses = append(u.UnlockedCourses, contentID)
	}
	return nil
}

func (m *mockUserRepo) RevokeUnlock(ctx context.Context, userID, contentID uuid.UUID, kind repository.ContentKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	set := u.UnlockedSet(kind)
	var kept []uuid.UUID
	for _, id := range set {
		if id != contentID {
			kept = append(kept, id)
		}
	}
	if kind == repository.KindProduct {
		u.UnlockedProducts = kept
	} else {
		u.UnlockedCourses = kept
	}
	return nil
}

func (m *mockUserRepo) SetBlocked(ctx context.Context, userID uuid.UUID, blocked bool, reason *string) error {
	return nil
}

type fixture struct {
	content *mockContentRepo
	users   *mockUserRepo
	bus     *events.InMemoryEventBus
	svc     *Service
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		content: newMockContentRepo(),
		users:   newMockUserRepo(),
		bus:     events.NewEventBus(events.NewEventStore(100)),
		now:     time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.content, f.users, nil, f.bus, nil)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) addUser(t *testing.T, daysAgo int) *repository.User {
	t.Helper()
	u := &repository.User{
		ID:               uuid.New(),
		Email:            uuid.New().String() + "@example.com",
		RegistrationDate: f.now.Add(-time.Duration(daysAgo) * 24 * time.Hour),
	}
	if err := f.users.Create(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u
}

// collectAccessChanges subscribes before the action and returns the
// captured events after a short settle
func (f *fixture) collectAccessChanges(t *testing.T, action func()) []events.Event {
	t.Helper()
	var mu sync.Mutex
	var captured []events.Event
	unsubscribe := f.bus.SubscribeType(events.EventTypeAccessChanged, func(e events.Event) {
		mu.Lock()
		captured = append(captured, e)
		mu.Unlock()
	})
	defer unsubscribe()

	action()
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	return append([]events.Event(nil), captured...)
}

func TestCatalogAnnotatesEveryItem(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, 3)

	open := &repository.ContentItem{ID: uuid.New(), Kind: repository.KindCourse, Title: "Open"}
	days := 7
	link := "https://example.com/upgrade"
	countdown := &repository.ContentItem{
		ID: uuid.New(), Kind: repository.KindCourse, Title: "Countdown",
		IsBlocked: true, UnlockAfterDays: &days,
	}
	manual := &repository.ContentItem{
		ID: uuid.New(), Kind: repository.KindProduct, Title: "Manual",
		IsBlocked: true, ManualUnlockOnly: true, UnblockLink: &link,
	}
	for _, item := range []*repository.ContentItem{open, countdown, manual} {
		if err := f.content.Create(context.Background(), item); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := f.svc.Catalog(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want locked items listed too", len(entries))
	}

	byID := make(map[uuid.UUID]CatalogEntry)
	for _, e := range entries {
		byID[e.Item.ID] = e
	}

	if d := byID[open.ID].Decision; !d.Accessible {
		t.Error("unblocked item not accessible")
	}
	if d := byID[countdown.ID].Decision; d.Accessible || d.Reason != access.ReasonCountdown {
		t.Errorf("countdown decision = %+v", d)
	} else if d.DaysRemaining == nil || *d.DaysRemaining != 4 {
		t.Errorf("days remaining = %v, want 4", d.DaysRemaining)
	}
	if d := byID[manual.ID].Decision; d.Accessible || d.Reason != access.ReasonManual {
		t.Errorf("manual decision = %+v", d)
	} else if d.UnblockLink == nil || *d.UnblockLink != link {
		t.Errorf("unblock link = %v", d.UnblockLink)
	}
}

func TestGetDetailHidesInactiveTopics(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, 3)

	item := &repository.ContentItem{ID: uuid.New(), Kind: repository.KindCourse, Title: "Open"}
	if err := f.content.Create(context.Background(), item); err != nil {
		t.Fatal(err)
	}

	activeTopic := repository.Topic{ID: uuid.New(), ContentID: item.ID, Title: "Basics", Position: 0, IsActive: true}
	draftTopic := repository.Topic{ID: uuid.New(), ContentID: item.ID, Title: "Draft", Position: 1, IsActive: false}
	f.content.topics[item.ID] = []repository.Topic{activeTopic, draftTopic}

	visible := repository.Lesson{ID: uuid.New(), ContentID: item.ID, TopicID: &activeTopic.ID, Title: "L1"}
	hidden := repository.Lesson{ID: uuid.New(), ContentID: item.ID, TopicID: &draftTopic.ID, Title: "L2"}
	untopiced := repository.Lesson{ID: uuid.New(), ContentID: item.ID, Title: "L3"}
	f.content.lessons[item.ID] = []repository.Lesson{visible, hidden, untopiced}

	detail, err := f.svc.GetDetail(context.Background(), user.ID, item.ID)
	if err != nil {
		t.Fatalf("GetDetail: %v", err)
	}
	if len(detail.Topics) != 1 || detail.Topics[0].ID != activeTopic.ID {
		t.Errorf("topics = %+v, want only the active topic", detail.Topics)
	}
	if len(detail.Lessons) != 2 {
		t.Fatalf("lessons = %d, want the draft topic's lesson hidden", len(detail.Lessons))
	}
	for _, lesson := range detail.Lessons {
		if lesson.ID == hidden.ID {
			t.Error("draft-topic lesson leaked into detail")
		}
	}
}

func TestGetDetailDeniesLockedContent(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, 3)

	item := &repository.ContentItem{
		ID: uuid.New(), Kind: repository.KindCourse, Title: "Locked",
		IsBlocked: true, ManualUnlockOnly: true,
	}
	if err := f.content.Create(context.Background(), item); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.GetDetail(context.Background(), user.ID, item.ID)
	if !errors.Is(err, ErrContentLocked) {
		t.Errorf("err = %v, want ErrContentLocked", err)
	}
}

func TestCreateItemSanitizesFields(t *testing.T) {
	f := newFixture(t)

	desc := `<p>Learn things</p><script>alert("xss")</script>`
	item, err := f.svc.CreateItem(context.Background(), ItemInput{
		Kind:        repository.KindCourse,
		Title:       "<b>Course</b> One",
		Description: &desc,
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	if item.Title != "Course One" {
		t.Errorf("title = %q, want markup stripped", item.Title)
	}
	if item.Description == nil || *item.Description != "<p>Learn things</p>" {
		t.Errorf("description = %v, want script removed", item.Description)
	}
}

func TestUpdateItemBroadcastsRuleChange(t *testing.T) {
	f := newFixture(t)
	item := &repository.ContentItem{ID: uuid.New(), Kind: repository.KindCourse, Title: "Course"}
	if err := f.content.Create(context.Background(), item); err != nil {
		t.Fatal(err)
	}

	captured := f.collectAccessChanges(t, func() {
		_, err := f.svc.UpdateItem(context.Background(), item.ID, ItemInput{
			Kind:      repository.KindCourse,
			Title:     "Course",
			IsBlocked: true,
		})
		if err != nil {
			t.Errorf("UpdateItem: %v", err)
		}
	})

	if len(captured) != 1 {
		t.Fatalf("events = %d, want 1", len(captured))
	}
	if captured[0].UserID != "" {
		t.Errorf("event user = %q, want broadcast", captured[0].UserID)
	}

	got, _ := f.content.GetByID(context.Background(), item.ID)
	if !got.IsBlocked {
		t.Error("update not persisted")
	}
}

func TestGrantAndRevokePublishPerUserEvents(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, 3)
	item := &repository.ContentItem{
		ID: uuid.New(), Kind: repository.KindProduct, Title: "Bundle",
		IsBlocked: true, ManualUnlockOnly: true,
	}
	if err := f.content.Create(context.Background(), item); err != nil {
		t.Fatal(err)
	}

	captured := f.collectAccessChanges(t, func() {
		if err := f.svc.GrantAccess(context.Background(), user.ID, item.ID); err != nil {
			t.Errorf("GrantAccess: %v", err)
		}
	})
	if len(captured) != 1 || captured[0].UserID != user.ID.String() {
		t.Fatalf("grant events = %+v, want one for the user", captured)
	}

	stored, _ := f.users.GetByID(context.Background(), user.ID)
	if !stored.HasUnlocked(item.ID, repository.KindProduct) {
		t.Error("grant not persisted in the product override set")
	}

	if err := f.svc.RevokeAccess(context.Background(), user.ID, item.ID); err != nil {
		t.Fatalf("RevokeAccess: %v", err)
	}
	stored, _ = f.users.GetByID(context.Background(), user.ID)
	if stored.HasUnlocked(item.ID, repository.KindProduct) {
		t.Error("revoke not persisted")
	}
}

func TestGrantAccessUnknownContent(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, 3)

	err := f.svc.GrantAccess(context.Background(), user.ID, uuid.New())
	if !errors.Is(err, repository.ErrContentNotFound) {
		t.Errorf("err = %v, want ErrContentNotFound", err)
	}
}

func TestScheduleUnlockRoundTrip(t *testing.T) {
	f := newFixture(t)
	item := &repository.ContentItem{
		ID: uuid.New(), Kind: repository.KindCourse, Title: "Launch",
		IsBlocked: true,
	}
	if err := f.content.Create(context.Background(), item); err != nil {
		t.Fatal(err)
	}

	at := f.now.Add(48 * time.Hour)
	updated, err := f.svc.ScheduleUnlock(context.Background(), item.ID, at)
	if err != nil {
		t.Fatalf("ScheduleUnlock: %v", err)
	}
	if updated.ScheduledUnlockDate == nil || !updated.ScheduledUnlockDate.Equal(at) {
		t.Errorf("scheduled date = %v, want %v", updated.ScheduledUnlockDate, at)
	}

	updated, err = f.svc.ClearScheduledUnlock(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("ClearScheduledUnlock: %v", err)
	}
	if updated.ScheduledUnlockDate != nil {
		t.Error("scheduled date not cleared")
	}
}
