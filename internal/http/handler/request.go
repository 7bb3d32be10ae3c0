package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sandeepkv93/crudguard/internal/domain"
	"github.com/sandeepkv93/crudguard/internal/http/middleware"
	"github.com/sandeepkv93/crudguard/internal/http/response"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return false
	}
	return true
}

func requestContext(w http.ResponseWriter, r *http.Request) (*domain.RequestContext, bool) {
	rc, ok := middleware.RequestContextFrom(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing request context", nil)
		return nil, false
	}
	return rc, true
}

func requireUser(w http.ResponseWriter, r *http.Request) (*domain.RequestContext, bool) {
	rc, ok := requestContext(w, r)
	if !ok {
		return nil, false
	}
	if rc.IsGuest() {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "sign in required", nil)
		return nil, false
	}
	return rc, true
}
