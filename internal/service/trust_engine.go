package service

import (
	"context"
	"time"

	"github.com/sandeepkv93/crudguard/internal/domain"
	"github.com/sandeepkv93/crudguard/internal/observability"
)

var (
	trustAgeWeeks         = []float64{1, 4, 12, 24, 48}
	trustIncidentSteps    = []int{1, 100, 1000}
	trustHighTrafficSteps = []int{1, 10, 100, 1000}
	trustErrorSteps       = []int{1, 100, 1000}
)

// CaptchaTrustCeiling is the highest score that still requires a captcha.
const CaptchaTrustCeiling = 2

type TrustEngine struct {
	roles    *RoleGraph
	store    UserLookup
	interval time.Duration
	adjuster TrustAdjuster
	now      func() time.Time
}

func NewTrustEngine(roles *RoleGraph, store UserLookup, interval time.Duration) *TrustEngine {
	return &TrustEngine{
		roles:    roles,
		store:    store,
		interval: interval,
		adjuster: func(_ context.Context, _ *domain.User, _ *domain.RequestContext, score int) int { return score },
		now:      time.Now,
	}
}

func (e *TrustEngine) SetAdjuster(a TrustAdjuster) {
	if a != nil {
		e.adjuster = a
	}
}

// GetOrComputeTrust returns the cached score while it is fresh, otherwise
// recomputes it, persists it in the background and refreshes the cached user.
func (e *TrustEngine) GetOrComputeTrust(ctx context.Context, user *domain.User, rc *domain.RequestContext) int {
	now := e.now()
	if user.LastComputedTrust != nil && user.LastComputedTrust.Add(e.interval).After(now) {
		observability.RecordTrustComputation(ctx, "cached", user.Trust)
		return user.Trust
	}

	score := ComputeTrust(user, e.roles != nil && e.roles.IsAdmin(user.Role), now)
	score = e.adjuster(ctx, user, rc, score)

	user.Trust = score
	user.LastComputedTrust = &now
	patch := domain.UserPatch{
		domain.ColTrust:             score,
		domain.ColLastComputedTrust: now,
	}
	if score <= CaptchaTrustCeiling && !user.CaptchaRequested {
		user.CaptchaRequested = true
		patch[domain.ColCaptchaRequested] = true
	}
	if e.store != nil {
		e.store.PatchDetached(user, patch)
		e.store.SetCached(ctx, user)
	}
	observability.RecordTrustComputation(ctx, "computed", score)
	return score
}

// ComputeTrust scores a user from its record alone. The result may be negative.
func ComputeTrust(user *domain.User, admin bool, now time.Time) int {
	score := 0
	if user.VerifiedEmail {
		score += 4
	}
	ageWeeks := now.Sub(user.CreatedAt).Hours() / (24 * 7)
	for _, w := range trustAgeWeeks {
		if ageWeeks >= w {
			score++
		}
	}
	if admin {
		score += 4
	}
	score -= 2 * stepsCrossed(user.IncidentCount, trustIncidentSteps)
	score -= 2 * stepsCrossed(user.HighTrafficCount, trustHighTrafficSteps)
	score -= stepsCrossed(user.ErrorCount, trustErrorSteps)
	if user.DidCaptcha {
		score += 2
	}
	return score
}

func stepsCrossed(v int, steps []int) int {
	n := 0
	for _, s := range steps {
		if v >= s {
			n++
		}
	}
	return n
}
