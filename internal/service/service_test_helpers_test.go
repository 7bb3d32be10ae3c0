package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/crudguard/internal/config"
	"github.com/sandeepkv93/crudguard/internal/domain"
	"github.com/sandeepkv93/crudguard/internal/repository"
)

type loggedEvent struct {
	kind    domain.SecurityEventKind
	message string
	attrs   map[string]any
}

type memorySecurityLog struct {
	mu     sync.Mutex
	events []loggedEvent
}

func (l *memorySecurityLog) LogSecurity(_ context.Context, kind domain.SecurityEventKind, message string, attrs ...any) {
	fields := make(map[string]any)
	for i := 0; i+1 < len(attrs); i += 2 {
		if k, ok := attrs[i].(string); ok {
			fields[k] = attrs[i+1]
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, loggedEvent{kind: kind, message: message, attrs: fields})
}

func (l *memorySecurityLog) count(kind domain.SecurityEventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.kind == kind {
			n++
		}
	}
	return n
}

// fakeUserLookup is an in-memory UserLookup that records detached patches.
type fakeUserLookup struct {
	mu      sync.Mutex
	users   map[string]*domain.User
	patches []domain.UserPatch
	cached  map[string]*domain.User
	fresh   int
	reads   int

	// err is returned by every lookup when set.
	err error
}

func newFakeUserLookup(users ...*domain.User) *fakeUserLookup {
	f := &fakeUserLookup{users: make(map[string]*domain.User), cached: make(map[string]*domain.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUserLookup) FindByID(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fresh++
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return u.Clone(), nil
}

func (f *fakeUserLookup) FindByIDCached(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	if u, ok := f.cached[id]; ok {
		return u.Clone(), nil
	}
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return u.Clone(), nil
}

func (f *fakeUserLookup) PatchDetached(_ *domain.User, patch domain.UserPatch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, patch)
}

func (f *fakeUserLookup) SetCached(_ context.Context, user *domain.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cached[user.ID] = user.Clone()
}

func (f *fakeUserLookup) lastPatch() domain.UserPatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.patches) == 0 {
		return nil
	}
	return f.patches[len(f.patches)-1]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newSQLiteDBForTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newUserStoreForTest(t *testing.T) (*UserStore, *Detacher) {
	t.Helper()
	detacher := NewDetacher(time.Second, &memorySecurityLog{})
	store := NewUserStore(
		repository.NewUserRepository(newSQLiteDBForTest(t)),
		NewInMemoryUserCacheStore(),
		NewInMemoryMissingUserCache(),
		time.Minute,
		time.Minute,
		detacher,
		discardLogger(),
	)
	return store, detacher
}

func waitDetached(t *testing.T, d *Detacher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("wait for detached tasks: %v", err)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRoleGraph(t *testing.T) *RoleGraph {
	t.Helper()
	g, err := NewRoleGraph(config.DefaultRoles("guest"))
	if err != nil {
		t.Fatalf("role graph: %v", err)
	}
	return g
}

func testTrafficOptions() config.TrafficWatchOptions {
	opts := config.DefaultTrafficWatchOptions()
	opts.DDoSProtection = true
	return opts
}

func requireAuthError(t *testing.T, err error, kind ErrorKind, code string) *AuthError {
	t.Helper()
	ae, ok := AsAuthError(err)
	if !ok {
		t.Fatalf("expected AuthError %s, got %v", code, err)
	}
	if ae.Kind != kind || ae.Code != code {
		t.Fatalf("expected kind=%d code=%s, got kind=%d code=%s (%s)", kind, code, ae.Kind, ae.Code, ae.Message)
	}
	return ae
}
