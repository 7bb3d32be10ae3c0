package handler

import (
	"net/http"
	"strconv"

	"github.com/sandeepkv93/crudguard/internal/domain"
	"github.com/sandeepkv93/crudguard/internal/http/response"
	"github.com/sandeepkv93/crudguard/internal/observability"
	"github.com/sandeepkv93/crudguard/internal/repository"
	"github.com/sandeepkv93/crudguard/internal/service"
)

type AdminHandler struct {
	guard   *service.AuthGuard
	traffic *service.TrafficMonitor
	events  *service.PersistentSecurityLog
}

func NewAdminHandler(guard *service.AuthGuard, traffic *service.TrafficMonitor, events *service.PersistentSecurityLog) *AdminHandler {
	return &AdminHandler{guard: guard, traffic: traffic, events: events}
}

// Isolate quarantines the instance. Every later request, including admin
// ones, is refused until the process restarts with INSTANCE_ISOLATED=false.
func (h *AdminHandler) Isolate(w http.ResponseWriter, r *http.Request) {
	h.guard.SetIsolated(true)
	observability.Audit(r, "instance.isolate")
	response.JSON(w, r, http.StatusOK, map[string]bool{"isolated": true})
}

type trafficResponse struct {
	service.TrafficSnapshot
	UserRequestThreshold int `json:"user_request_threshold"`
	IPRequestThreshold   int `json:"ip_request_threshold"`
}

func (h *AdminHandler) Traffic(w http.ResponseWriter, r *http.Request) {
	opts := h.traffic.Options()
	response.JSON(w, r, http.StatusOK, trafficResponse{
		TrafficSnapshot:      h.traffic.Snapshot(),
		UserRequestThreshold: opts.UserRequestThreshold,
		IPRequestThreshold:   opts.IPRequestThreshold,
	})
}

func (h *AdminHandler) ResetTraffic(w http.ResponseWriter, r *http.Request) {
	h.traffic.Reset()
	observability.Audit(r, "traffic.reset")
	response.JSON(w, r, http.StatusOK, map[string]bool{"reset": true})
}

func (h *AdminHandler) SecurityEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "security events are not persisted", nil)
		return
	}
	q := r.URL.Query()
	query := repository.SecurityEventQuery{
		Kind:   domain.SecurityEventKind(q.Get("kind")),
		UserID: q.Get("user_id"),
		IP:     q.Get("ip"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "limit must be a positive integer", nil)
			return
		}
		query.Limit = limit
	}
	events, err := h.events.Recent(r.Context(), query)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"events": events})
}
