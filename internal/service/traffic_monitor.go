package service

import (
	"context"
	"fmt"
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sandeepkv93/crudguard/internal/config"
	"github.com/sandeepkv93/crudguard/internal/domain"
	"github.com/sandeepkv93/crudguard/internal/observability"
)

// TrafficMonitor keeps bounded per-IP and per-user request counters. The
// counters are approximate: concurrent updates for one key may interleave and
// Reset wipes them on a fixed schedule.
type TrafficMonitor struct {
	opts          config.TrafficWatchOptions
	users         *lru.Cache[string, int]
	ips           *lru.Cache[string, int]
	timedOutIPs   *lru.Cache[string, time.Time]
	store         UserLookup
	log           observability.SecurityLogger
	onHighTraffic HighTrafficHook
	now           func() time.Time
}

type TrafficSnapshot struct {
	TrackedUsers int                  `json:"tracked_users"`
	TrackedIPs   int                  `json:"tracked_ips"`
	TimedOutIPs  map[string]time.Time `json:"timed_out_ips"`
}

func NewTrafficMonitor(opts config.TrafficWatchOptions, store UserLookup, log observability.SecurityLogger) (*TrafficMonitor, error) {
	users, err := lru.New[string, int](opts.MaxTrackedUsers)
	if err != nil {
		return nil, fmt.Errorf("user traffic map: %w", err)
	}
	ips, err := lru.New[string, int](opts.MaxTrackedIPs)
	if err != nil {
		return nil, fmt.Errorf("ip traffic map: %w", err)
	}
	timedOut, err := lru.New[string, time.Time](opts.MaxTrackedIPs)
	if err != nil {
		return nil, fmt.Errorf("ip timeout map: %w", err)
	}
	if log == nil {
		log = observability.NoopSecurityLogger{}
	}
	return &TrafficMonitor{
		opts:          opts,
		users:         users,
		ips:           ips,
		timedOutIPs:   timedOut,
		store:         store,
		log:           log,
		onHighTraffic: func(context.Context, *domain.User, *domain.RequestContext) {},
		now:           time.Now,
	}, nil
}

func (m *TrafficMonitor) SetHighTrafficHook(h HighTrafficHook) {
	if h != nil {
		m.onHighTraffic = h
	}
}

// IPTimeout returns the ban expiry for ip when one is active.
func (m *TrafficMonitor) IPTimeout(ip string) (time.Time, bool) {
	until, ok := m.timedOutIPs.Peek(ip)
	if !ok || !until.After(m.now()) {
		return time.Time{}, false
	}
	return until, true
}

// RecordIP counts a request from ip and reports whether the ip is banned.
// Requests arriving during a ban are still counted, silently, so a client that
// keeps hammering keeps its ban armed.
func (m *TrafficMonitor) RecordIP(ctx context.Context, ip string) bool {
	if until, ok := m.timedOutIPs.Peek(ip); ok {
		if until.After(m.now()) {
			m.recordIP(ctx, ip, true)
			return true
		}
		// Ban served: start counting from scratch.
		m.timedOutIPs.Remove(ip)
		m.ips.Remove(ip)
	}
	return m.recordIP(ctx, ip, false)
}

func (m *TrafficMonitor) recordIP(ctx context.Context, ip string, silent bool) bool {
	count, _ := m.ips.Get(ip)
	next := count + 1
	if next > m.opts.IPRequestThreshold {
		until := m.now().Add(m.opts.TimeoutDuration)
		m.timedOutIPs.Add(ip, until)
		if !silent {
			observability.RecordTrafficEvent(ctx, "ip", "timeout")
			m.log.LogSecurity(ctx, domain.EventSecurity,
				fmt.Sprintf("High traffic event for ip with %d requests.", next),
				"ip", ip, "timeout_until", until.UTC().Format(time.RFC3339))
		}
		return true
	}
	m.ips.Add(ip, next)
	return false
}

// RecordUser counts a request for an authenticated user. Crossing the
// per-user threshold flags the user for captcha, persists the new
// high-traffic count in the background and may impose an account timeout.
func (m *TrafficMonitor) RecordUser(ctx context.Context, user *domain.User, rc *domain.RequestContext) {
	if user == nil || user.ID == "" {
		return
	}
	count, _ := m.users.Get(user.ID)
	count++
	limit := float64(m.opts.UserRequestThreshold) * user.TrafficMultiplier()
	if float64(count) < limit {
		m.users.Add(user.ID, count)
		return
	}

	var increment float64
	if mult := user.TrafficMultiplier(); mult > 1 {
		increment = float64(count) / limit
	} else {
		increment = float64(count) * (1 / float64(m.opts.UserRequestThreshold))
	}
	user.HighTrafficCount += int(math.Round(increment))
	user.CaptchaRequested = true
	patch := domain.UserPatch{
		domain.ColHighTrafficCount: user.HighTrafficCount,
		domain.ColCaptchaRequested: true,
	}
	if user.HighTrafficCount >= m.opts.TimeoutThresholdTotal {
		until := m.now().Add(m.opts.TimeoutDuration * time.Duration(user.TimeoutCount+1))
		user.TimeoutUntil = &until
		user.TimeoutCount++
		patch[domain.ColTimeoutUntil] = until
		patch[domain.ColTimeoutCount] = user.TimeoutCount
		observability.RecordTrafficEvent(ctx, "user", "timeout")
	}
	observability.RecordTrafficEvent(ctx, "user", "high_traffic")

	if m.store != nil {
		m.store.PatchDetached(user, patch)
		m.store.SetCached(ctx, user)
	}
	ip := ""
	if rc != nil {
		ip = rc.IP
	}
	m.log.LogSecurity(ctx, domain.EventSecurity,
		fmt.Sprintf("High traffic event for user %s with %d requests.", user.ID, count),
		"user_id", user.ID, "ip", ip, "high_traffic_count", user.HighTrafficCount)
	m.onHighTraffic(ctx, user, rc)
	m.users.Add(user.ID, 0)
}

// Reset clears both request counters. Active IP bans are kept so they always
// run their full duration.
func (m *TrafficMonitor) Reset() {
	m.users.Purge()
	m.ips.Purge()
}

func (m *TrafficMonitor) Snapshot() TrafficSnapshot {
	now := m.now()
	snap := TrafficSnapshot{
		TrackedUsers: m.users.Len(),
		TrackedIPs:   m.ips.Len(),
		TimedOutIPs:  make(map[string]time.Time),
	}
	for _, ip := range m.timedOutIPs.Keys() {
		if until, ok := m.timedOutIPs.Peek(ip); ok && until.After(now) {
			snap.TimedOutIPs[ip] = until
		}
	}
	return snap
}

func (m *TrafficMonitor) Options() config.TrafficWatchOptions {
	return m.opts
}
