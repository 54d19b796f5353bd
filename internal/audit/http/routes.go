package audithttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/climatewatch/auditview/internal/shared"
)

const rateLimit = 120
const rateWindow = time.Minute

// MountRoutes registers the audit table and its form actions.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)
	r.Get("/audit", h.handleTable)
	r.Get("/audit/state", h.handleState)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Post("/audit/page", h.handlePage)
		gr.Post("/audit/size", h.handleSize)
		gr.Post("/audit/toggle", h.handleToggle)
		gr.Post("/audit/refresh", h.handleRefresh)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil && sess.ID != "" {
		return "session:" + sess.ID, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
