package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sandeepkv93/crudguard/internal/domain"
)

var (
	ErrRoleCycle         = errors.New("role graph contains a cycle")
	ErrUnknownParentRole = errors.New("role references an unknown parent")
	ErrDuplicateRole     = errors.New("duplicate role name")
	ErrEmptyRoleName     = errors.New("role name is empty")
)

// RoleGraph is an immutable, validated role tree. Ancestor chains are
// precomputed so lookups never walk parents at request time.
type RoleGraph struct {
	roles     map[string]*domain.Role
	ancestors map[string][]*domain.Role
	order     []string
}

func NewRoleGraph(roles []domain.Role) (*RoleGraph, error) {
	g := &RoleGraph{
		roles:     make(map[string]*domain.Role, len(roles)),
		ancestors: make(map[string][]*domain.Role, len(roles)),
	}
	for i := range roles {
		r := roles[i]
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return nil, ErrEmptyRoleName
		}
		if _, dup := g.roles[name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRole, name)
		}
		r.Name = name
		g.roles[name] = &r
		g.order = append(g.order, name)
	}
	for _, name := range g.order {
		if p := g.roles[name].Parent; p != "" {
			if _, ok := g.roles[p]; !ok {
				return nil, fmt.Errorf("%w: %s -> %s", ErrUnknownParentRole, name, p)
			}
		}
	}
	for _, name := range g.order {
		chain, err := g.walk(name)
		if err != nil {
			return nil, err
		}
		g.ancestors[name] = chain
	}
	return g, nil
}

func (g *RoleGraph) walk(name string) ([]*domain.Role, error) {
	seen := make(map[string]bool)
	var chain []*domain.Role
	for cur := name; cur != ""; cur = g.roles[cur].Parent {
		if seen[cur] {
			return nil, fmt.Errorf("%w: %s", ErrRoleCycle, strings.Join(roleNames(append(chain, g.roles[cur])), " -> "))
		}
		seen[cur] = true
		chain = append(chain, g.roles[cur])
	}
	return chain, nil
}

func (g *RoleGraph) Role(name string) (*domain.Role, bool) {
	r, ok := g.roles[name]
	return r, ok
}

// Ancestors returns the role itself followed by its parents up to the root.
func (g *RoleGraph) Ancestors(name string) []*domain.Role {
	return g.ancestors[name]
}

func (g *RoleGraph) Names() []string {
	return append([]string(nil), g.order...)
}

// Children lists the direct descendants of name in declaration order.
func (g *RoleGraph) Children(name string) []string {
	var out []string
	for _, n := range g.order {
		if g.roles[n].Parent == name {
			out = append(out, n)
		}
	}
	return out
}

// Roots lists roles without a parent.
func (g *RoleGraph) Roots() []string {
	return g.Children("")
}

// CommandRule resolves a command against the role chain. Grants are additive;
// when several roles grant it the lowest trust demand wins.
func (g *RoleGraph) CommandRule(role, command string) (domain.CommandRule, bool) {
	var (
		best  domain.CommandRule
		found bool
	)
	for _, r := range g.ancestors[role] {
		for _, key := range []string{command, domain.Wildcard} {
			rule, ok := r.Commands[key]
			if !ok {
				continue
			}
			if !found || rule.MinTrust < best.MinTrust {
				best = rule
			}
			found = true
		}
	}
	return best, found
}

// FieldRule resolves field access the same way as CommandRule.
func (g *RoleGraph) FieldRule(role, field string, access domain.FieldAccess) (domain.FieldRule, bool) {
	var (
		best  domain.FieldRule
		found bool
	)
	for _, r := range g.ancestors[role] {
		for _, key := range fieldKeys(field) {
			rule, ok := r.Fields[key]
			if !ok || !rule.Grants(access) {
				continue
			}
			if !found || rule.MinTrust < best.MinTrust {
				best = rule
			}
			found = true
		}
	}
	return best, found
}

// IsAllowed ignores trust requirements; see Authorizer for the trust-aware check.
func (g *RoleGraph) IsAllowed(role, command string) bool {
	_, ok := g.CommandRule(role, command)
	return ok
}

func (g *RoleGraph) IsFieldAllowed(role, field string, access domain.FieldAccess) bool {
	_, ok := g.FieldRule(role, field, access)
	return ok
}

// CanMock reports whether role may impersonate target: target must be role
// itself or one of its ancestors.
func (g *RoleGraph) CanMock(role, target string) bool {
	for _, r := range g.ancestors[role] {
		if r.Name == target {
			return true
		}
	}
	return false
}

// EffectiveCommands lists every command granted along the chain with the
// lowest trust each one demands.
func (g *RoleGraph) EffectiveCommands(role string) map[string]domain.CommandRule {
	out := make(map[string]domain.CommandRule)
	for _, r := range g.ancestors[role] {
		for cmd, rule := range r.Commands {
			if cur, ok := out[cmd]; !ok || rule.MinTrust < cur.MinTrust {
				out[cmd] = rule
			}
		}
	}
	return out
}

func (g *RoleGraph) IsAdmin(role string) bool {
	r, ok := g.roles[role]
	return ok && r.IsAdmin
}

// fieldKeys yields the lookup keys for a dotted field path: the exact path,
// each "prefix.*" and finally the global wildcard.
func fieldKeys(field string) []string {
	keys := []string{field}
	parts := strings.Split(field, ".")
	for i := len(parts) - 1; i > 0; i-- {
		keys = append(keys, strings.Join(parts[:i], ".")+"."+domain.Wildcard)
	}
	return append(keys, domain.Wildcard)
}

func roleNames(roles []*domain.Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, r.Name)
	}
	return out
}

// SortedCommandNames is a helper for stable rendering.
func SortedCommandNames(cmds map[string]domain.CommandRule) []string {
	out := make([]string, 0, len(cmds))
	for k := range cmds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
