package api

import (
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/config"

	"golang.org/x/time/rate"
)

var (
	errMissingAPIKey    = errors.New("missing api key")
	errInvalidAPIKey    = errors.New("invalid api key")
	errPermissionDenied = errors.New("permission denied")
)

// Auth provides API-key auth and per-key rate limiting.
type Auth struct {
	cfg      config.APIConfig
	limiters sync.Map // map[string]*rate.Limiter
}

func NewAuth(cfg config.APIConfig) *Auth {
	return &Auth{cfg: cfg}
}

func (a *Auth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(r); err != nil {
				statusCode := http.StatusUnauthorized
				if errors.Is(err, errPermissionDenied) {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, err.Error())
				return
			}
		}

		if err := a.checkRateLimit(r); err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *Auth) checkAuth(r *http.Request) error {
	apiKey := strings.TrimSpace(r.Header.Get(a.headerName()))
	if apiKey == "" {
		return errMissingAPIKey
	}

	client, ok := a.lookupKey(apiKey)
	if !ok {
		return errInvalidAPIKey
	}

	return checkPermissions(client, r)
}

// lookupKey compares the presented key against every configured key in
// constant time.
func (a *Auth) lookupKey(presented string) (config.APIClientKey, bool) {
	var (
		match config.APIClientKey
		found bool
	)
	for _, k := range a.cfg.Auth.APIKeys {
		if subtle.ConstantTimeCompare([]byte(k.Key), []byte(presented)) == 1 {
			match = k
			found = true
		}
	}
	return match, found
}

func checkPermissions(client config.APIClientKey, r *http.Request) error {
	required := requiredPermission(r)
	if required == "" {
		return nil
	}
	// An empty permission list grants everything.
	if len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

func requiredPermission(r *http.Request) string {
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/api/v1/checkout/"):
		if strings.HasSuffix(path, "/validate") {
			return "read:availability"
		}
		return "write:bookings"
	case strings.HasPrefix(path, "/api/v1/bookings/"):
		return "write:bookings"
	case strings.HasPrefix(path, "/api/v1/calendar"),
		strings.HasPrefix(path, "/api/v1/occupancy"),
		strings.HasPrefix(path, "/api/v1/price-preview"):
		return "read:availability"
	case strings.HasPrefix(path, "/api/v1/exports/"):
		return "read:exports"
	}
	return ""
}

func (a *Auth) headerName() string {
	header := strings.TrimSpace(a.cfg.Auth.HeaderAPIKey)
	if header == "" {
		header = "x-api-key"
	}
	return header
}

func (a *Auth) checkRateLimit(r *http.Request) error {
	if a.cfg.RateLimit.RPS <= 0 {
		return nil
	}

	lim := a.getLimiter(a.clientKey(r))
	if !lim.Allow() {
		return errors.New("rate limit exceeded")
	}
	return nil
}

func (a *Auth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.headerName())); apiKey != "" {
		return apiKey
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

func (a *Auth) getLimiter(key string) *rate.Limiter {
	if v, ok := a.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}

	burst := a.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(a.cfg.RateLimit.RPS), burst)
	actual, loaded := a.limiters.LoadOrStore(key, lim)
	if loaded {
		return actual.(*rate.Limiter)
	}
	return lim
}
