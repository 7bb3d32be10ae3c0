package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/sandeepkv93/crudguard/internal/domain"
)

const scratchTrustResolved = "authz.trust_resolved"

// Authorizer evaluates command and field rules for the request's role. Rules
// that demand trust trigger a lazy trust computation for the user.
type Authorizer struct {
	roles *RoleGraph
	trust *TrustEngine
}

func NewAuthorizer(roles *RoleGraph, trust *TrustEngine) *Authorizer {
	return &Authorizer{roles: roles, trust: trust}
}

func (a *Authorizer) AuthorizeCommand(ctx context.Context, rc *domain.RequestContext, command string) error {
	rule, ok := a.roles.CommandRule(rc.RoleName, command)
	if !ok {
		return Forbidden(CodeForbidden, fmt.Sprintf("Role %s is not allowed to run %s.", rc.RoleName, command)).
			WithData("command", command)
	}
	return a.requireTrust(ctx, rc, rule.MinTrust)
}

func (a *Authorizer) AuthorizeFields(ctx context.Context, rc *domain.RequestContext, access domain.FieldAccess, fields []string) error {
	var (
		denied   []string
		minTrust int
	)
	for _, f := range fields {
		rule, ok := a.roles.FieldRule(rc.RoleName, f, access)
		if !ok {
			denied = append(denied, f)
			continue
		}
		if rule.MinTrust > minTrust {
			minTrust = rule.MinTrust
		}
	}
	if len(denied) > 0 {
		sort.Strings(denied)
		return Forbidden(CodeForbidden, fmt.Sprintf("Role %s may not %s these fields.", rc.RoleName, access)).
			WithData("fields", denied)
	}
	return a.requireTrust(ctx, rc, minTrust)
}

// Trust resolves the request's trust: guests keep what the guard assigned,
// users get their computed score raised to the role's floor.
func (a *Authorizer) Trust(ctx context.Context, rc *domain.RequestContext) int {
	if v, ok := rc.Trust(); ok && (rc.IsGuest() || rc.Scratch[scratchTrustResolved] == true) {
		return v
	}
	score := 0
	if rc.User != nil && a.trust != nil {
		score = a.trust.GetOrComputeTrust(ctx, rc.User, rc)
	}
	if floor, ok := rc.Trust(); ok && floor > score {
		score = floor
	}
	rc.SetTrust(score)
	if rc.Scratch != nil {
		rc.Scratch[scratchTrustResolved] = true
	}
	return score
}

func (a *Authorizer) requireTrust(ctx context.Context, rc *domain.RequestContext, min int) error {
	if min <= 0 {
		return nil
	}
	if got := a.Trust(ctx, rc); got < min {
		return Forbidden(CodeForbidden, fmt.Sprintf("Trust %d is below the required %d.", got, min)).
			WithData("required_trust", min).
			WithData("trust", got)
	}
	return nil
}
