package api

import (
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	"mobilemech/internal/config"
)

var (
	errMissingCredential = errors.New("missing authorization header")
	errInvalidCredential = errors.New("invalid service credential")
	errPermissionDenied  = errors.New("permission denied")
	errRateLimited       = errors.New("rate limit exceeded")
)

const clientKeyUnknown = "unknown"

// HTTPAuth checks bearer service keys and applies per-key rate limits.
type HTTPAuth struct {
	cfg     config.APIConfig
	limiter *rateLimiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	return &HTTPAuth{cfg: cfg, limiter: newRateLimiter(cfg.RateLimit)}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || r.URL.Path == PathHealth || r.URL.Path == PathReady {
			next.ServeHTTP(w, r)
			return
		}

		clientKey := remoteHost(r)
		if !a.cfg.Auth.Disabled {
			key, err := a.authenticate(r)
			if err != nil {
				writeFailure(w, http.StatusUnauthorized, err.Error())
				return
			}
			if !hasPermission(key, requiredPermission(r.URL.Path)) {
				writeFailure(w, http.StatusForbidden, errPermissionDenied.Error())
				return
			}
			clientKey = key.Name
		}

		if !a.limiter.Allow(clientKey) {
			writeFailure(w, http.StatusTooManyRequests, errRateLimited.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) authenticate(r *http.Request) (config.ServiceKey, error) {
	token := bearerToken(r)
	if token == "" {
		return config.ServiceKey{}, errMissingCredential
	}

	var (
		match config.ServiceKey
		found bool
	)
	// no early exit: every configured key is compared
	for _, k := range a.cfg.Auth.ServiceKeys {
		if subtle.ConstantTimeCompare([]byte(k.Key), []byte(token)) == 1 && !found {
			match, found = k, true
		}
	}
	if !found {
		return config.ServiceKey{}, errInvalidCredential
	}
	return match, nil
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

func requiredPermission(path string) string {
	switch path {
	case PathAutoCancel:
		return config.PermRunMaintenance
	case PathRuns:
		return config.PermReadMaintenance
	}
	return ""
}

func hasPermission(key config.ServiceKey, required string) bool {
	if required == "" || len(key.Permissions) == 0 {
		return true
	}
	for _, p := range key.Permissions {
		if strings.TrimSpace(p) == required {
			return true
		}
	}
	return false
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}
