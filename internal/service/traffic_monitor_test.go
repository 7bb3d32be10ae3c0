package service

import (
	"context"
	"testing"
	"time"

	"github.com/sandeepkv93/crudguard/internal/domain"
)

func newTrafficMonitorForTest(t *testing.T, lookup UserLookup, log *memorySecurityLog) (*TrafficMonitor, *fakeClock) {
	t.Helper()
	m, err := NewTrafficMonitor(testTrafficOptions(), lookup, log)
	if err != nil {
		t.Fatalf("new traffic monitor: %v", err)
	}
	clock := newFakeClock()
	m.now = clock.Now
	return m, clock
}

func TestTrafficMonitorIPBanAfterThreshold(t *testing.T) {
	log := &memorySecurityLog{}
	m, clock := newTrafficMonitorForTest(t, nil, log)
	ctx := context.Background()

	for i := 1; i <= 700; i++ {
		if m.RecordIP(ctx, "10.0.0.1") {
			t.Fatalf("request %d must not be timed out", i)
		}
	}
	if !m.RecordIP(ctx, "10.0.0.1") {
		t.Fatal("701st request must be timed out")
	}
	if log.count(domain.EventSecurity) != 1 {
		t.Fatalf("expected one security event, got %d", log.count(domain.EventSecurity))
	}

	clock.Advance(14 * time.Minute)
	for i := 0; i < 50; i++ {
		if !m.RecordIP(ctx, "10.0.0.1") {
			t.Fatal("requests during the ban must stay timed out")
		}
	}
	if log.count(domain.EventSecurity) != 1 {
		t.Fatal("requests during the ban must be recorded silently")
	}
	if m.RecordIP(ctx, "10.0.0.2") {
		t.Fatal("other ips are unaffected")
	}
}

func TestTrafficMonitorResetKeepsActiveBans(t *testing.T) {
	m, clock := newTrafficMonitorForTest(t, nil, &memorySecurityLog{})
	ctx := context.Background()
	for i := 0; i < 701; i++ {
		m.RecordIP(ctx, "10.0.0.1")
	}
	m.Reset()
	if !m.RecordIP(ctx, "10.0.0.1") {
		t.Fatal("reset must not lift an active ban")
	}
	if snap := m.Snapshot(); len(snap.TimedOutIPs) != 1 {
		t.Fatalf("expected one banned ip in snapshot, got %+v", snap)
	}

	clock.Advance(15*time.Minute + time.Second)
	if m.RecordIP(ctx, "10.0.0.1") {
		t.Fatal("ban must lift once its duration elapsed")
	}
	if snap := m.Snapshot(); len(snap.TimedOutIPs) != 0 {
		t.Fatalf("expired ban must not be reported, got %+v", snap.TimedOutIPs)
	}
}

func TestTrafficMonitorUserHighTrafficEvent(t *testing.T) {
	user := &domain.User{ID: "u1", Role: "user"}
	lookup := newFakeUserLookup(user)
	log := &memorySecurityLog{}
	m, _ := newTrafficMonitorForTest(t, lookup, log)
	ctx := context.Background()

	var hookCalls int
	m.SetHighTrafficHook(func(context.Context, *domain.User, *domain.RequestContext) { hookCalls++ })

	for i := 0; i < 349; i++ {
		m.RecordUser(ctx, user, nil)
	}
	if user.HighTrafficCount != 0 {
		t.Fatalf("no event expected before the threshold, got %d", user.HighTrafficCount)
	}
	m.RecordUser(ctx, user, domain.NewRequestContext("1.2.3.4", "GET", "/x"))
	if user.HighTrafficCount != 1 || !user.CaptchaRequested {
		t.Fatalf("expected one high-traffic event and a captcha flag, got %+v", user)
	}
	patch := lookup.lastPatch()
	if patch[domain.ColHighTrafficCount] != 1 || patch[domain.ColCaptchaRequested] != true {
		t.Fatalf("unexpected detached patch: %+v", patch)
	}
	if _, ok := lookup.cached["u1"]; !ok {
		t.Fatal("cached copy must be refreshed")
	}
	if hookCalls != 1 || log.count(domain.EventSecurity) != 1 {
		t.Fatalf("expected hook and log once, got hook=%d log=%d", hookCalls, log.count(domain.EventSecurity))
	}

	for i := 0; i < 349; i++ {
		m.RecordUser(ctx, user, nil)
	}
	if user.HighTrafficCount != 1 {
		t.Fatal("counter must restart from zero after an event")
	}
}

func TestTrafficMonitorUserTimeoutAfterFiveEvents(t *testing.T) {
	user := &domain.User{ID: "u1", Role: "user"}
	lookup := newFakeUserLookup(user)
	m, clock := newTrafficMonitorForTest(t, lookup, &memorySecurityLog{})
	ctx := context.Background()

	for i := 0; i < 350*4; i++ {
		m.RecordUser(ctx, user, nil)
	}
	if user.TimeoutUntil != nil {
		t.Fatal("four events must not time the user out")
	}
	for i := 0; i < 350; i++ {
		m.RecordUser(ctx, user, nil)
	}
	if user.HighTrafficCount != 5 || user.TimeoutCount != 1 {
		t.Fatalf("expected 5 events and one timeout, got %+v", user)
	}
	want := clock.Now().Add(15 * time.Minute)
	if user.TimeoutUntil == nil || !user.TimeoutUntil.Equal(want) {
		t.Fatalf("expected timeout until %v, got %v", want, user.TimeoutUntil)
	}
	if lookup.lastPatch()[domain.ColTimeoutCount] != 1 {
		t.Fatalf("timeout must be persisted, got %+v", lookup.lastPatch())
	}

	for i := 0; i < 350; i++ {
		m.RecordUser(ctx, user, nil)
	}
	want = clock.Now().Add(30 * time.Minute)
	if user.TimeoutCount != 2 || !user.TimeoutUntil.Equal(want) {
		t.Fatalf("second timeout must last twice as long, got %v (count %d)", user.TimeoutUntil, user.TimeoutCount)
	}
}

func TestTrafficMonitorUserMultiplier(t *testing.T) {
	user := &domain.User{ID: "u1", Role: "user", AllowedTrafficMultiplier: 2}
	m, _ := newTrafficMonitorForTest(t, newFakeUserLookup(user), &memorySecurityLog{})
	ctx := context.Background()

	for i := 0; i < 699; i++ {
		m.RecordUser(ctx, user, nil)
	}
	if user.HighTrafficCount != 0 {
		t.Fatal("multiplier must raise the threshold")
	}
	m.RecordUser(ctx, user, nil)
	if user.HighTrafficCount != 1 {
		t.Fatalf("expected round(700/700)=1, got %d", user.HighTrafficCount)
	}
}

func TestTrafficMonitorEvictsLeastRecentlyUsed(t *testing.T) {
	opts := testTrafficOptions()
	opts.MaxTrackedIPs = 2
	opts.IPRequestThreshold = 2
	m, err := NewTrafficMonitor(opts, nil, nil)
	if err != nil {
		t.Fatalf("new traffic monitor: %v", err)
	}
	ctx := context.Background()

	m.RecordIP(ctx, "a")
	m.RecordIP(ctx, "a")
	m.RecordIP(ctx, "b")
	m.RecordIP(ctx, "c")
	if got := m.Snapshot().TrackedIPs; got != 2 {
		t.Fatalf("expected capacity-bound tracking, got %d", got)
	}
	if m.RecordIP(ctx, "a") {
		t.Fatal("evicted ip must start counting from zero")
	}
}
