// Package proxy forwards API calls from the browser to the audit backend.
package proxy

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/climatewatch/auditview/internal/platform/httpx"
)

// Config describes one proxied prefix.
type Config struct {
	// Target is the backend base URL, e.g. http://localhost:8080.
	Target string
	// Prefix is the path prefix handled by the proxy, e.g. /api.
	Prefix string
	// StripPrefix removes Prefix before forwarding.
	StripPrefix bool
}

// New returns a reverse proxy for cfg. The Host header is rewritten to the
// target host.
func New(cfg Config, logger *slog.Logger) (http.Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	target, err := url.Parse(cfg.Target)
	if err != nil {
		return nil, fmt.Errorf("proxy: invalid target: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, errors.New("proxy: target must be an absolute URL")
	}
	prefix := "/" + strings.Trim(cfg.Prefix, "/")
	if prefix == "/" {
		prefix = ""
	}

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			if cfg.StripPrefix && prefix != "" {
				stripPath(pr.Out.URL, prefix)
			}
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn("proxy upstream", slog.String("path", r.URL.Path), slog.Any("error", err))
			httpx.Problem(w, http.StatusBadGateway, "Bad Gateway", "audit backend unavailable")
		},
	}
	return rp, nil
}

func stripPath(u *url.URL, prefix string) {
	u.Path = trimPrefix(u.Path, prefix)
	if u.RawPath != "" {
		u.RawPath = trimPrefix(u.RawPath, prefix)
	}
}

func trimPrefix(p, prefix string) string {
	if p != prefix && !strings.HasPrefix(p, prefix+"/") {
		return p
	}
	p = strings.TrimPrefix(p, prefix)
	if p == "" {
		return "/"
	}
	return p
}
