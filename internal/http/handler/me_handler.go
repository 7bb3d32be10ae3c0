package handler

import (
	"net/http"

	"github.com/sandeepkv93/crudguard/internal/domain"
	"github.com/sandeepkv93/crudguard/internal/http/response"
	"github.com/sandeepkv93/crudguard/internal/service"
)

type MeHandler struct {
	roles      *service.RoleGraph
	authorizer *service.Authorizer
}

func NewMeHandler(roles *service.RoleGraph, authorizer *service.Authorizer) *MeHandler {
	return &MeHandler{roles: roles, authorizer: authorizer}
}

type meResponse struct {
	UserID     string       `json:"user_id,omitempty"`
	Role       string       `json:"role"`
	MockedFrom string       `json:"mocked_from,omitempty"`
	Trust      int          `json:"trust"`
	IP         string       `json:"ip"`
	User       *domain.User `json:"user,omitempty"`
}

func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, meResponse{
		UserID:     rc.UserID,
		Role:       rc.RoleName,
		MockedFrom: rc.MockedFrom,
		Trust:      h.authorizer.Trust(r.Context(), rc),
		IP:         rc.IP,
		User:       rc.User,
	})
}

type permissionsResponse struct {
	Role      string                        `json:"role"`
	Ancestors []string                      `json:"ancestors"`
	Commands  []string                      `json:"commands"`
	Rules     map[string]domain.CommandRule `json:"rules"`
}

func (h *MeHandler) Permissions(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	rules := h.roles.EffectiveCommands(rc.RoleName)
	ancestors := make([]string, 0)
	for _, role := range h.roles.Ancestors(rc.RoleName) {
		ancestors = append(ancestors, role.Name)
	}
	response.JSON(w, r, http.StatusOK, permissionsResponse{
		Role:      rc.RoleName,
		Ancestors: ancestors,
		Commands:  service.SortedCommandNames(rules),
		Rules:     rules,
	})
}
