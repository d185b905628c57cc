package admission

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"roomgate/internal/models"
	"strings"
)

// NewGateway returns a reverse proxy to the application upstream with the
// admission checks in front of it:
//   - every request passes the generic API check
//   - POST to the room-creation path also passes the room-creation check
//   - requests under the room-join prefix also pass the connection check
func NewGateway(cfg models.GatewayConfig, checker Checker, resolver *IdentityResolver, opts ...GuardOption) (http.Handler, error) {
	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL: %q", cfg.UpstreamURL)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		slog.Error("Proxy error", "error", err, "path", r.URL.Path)
		writeError(w, http.StatusBadGateway, "Bad gateway", models.ErrorCodeServiceUnavailable)
	}

	roomCreation := Guard("room-creation", checker.CheckRoomCreation, resolver, opts...)(proxy)
	connection := Guard("connections", checker.CheckConnection, resolver, opts...)(proxy)

	routed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && cfg.RoomCreatePath != "" && r.URL.Path == cfg.RoomCreatePath:
			roomCreation.ServeHTTP(w, r)
		case cfg.RoomJoinPrefix != "" && strings.HasPrefix(r.URL.Path, cfg.RoomJoinPrefix):
			connection.ServeHTTP(w, r)
		default:
			proxy.ServeHTTP(w, r)
		}
	})

	return WithRateLimit(checker, resolver, opts...)(routed), nil
}
