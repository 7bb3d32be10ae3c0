package observability

import (
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Audit records a state-changing action performed through the API, tagged
// with the request id so it can be joined with the request log line.
func Audit(r *http.Request, action string, attrs ...any) {
	ctx := r.Context()
	args := make([]any, 0, len(attrs)+6)
	args = append(args,
		slog.String("action", action),
		slog.String("route", r.Method+" "+r.URL.Path),
		slog.String("request_id", chimiddleware.GetReqID(ctx)),
	)
	args = append(args, attrs...)
	slog.InfoContext(ctx, "audit", args...)
	RecordSecurityEvent(ctx, "audit")
}
