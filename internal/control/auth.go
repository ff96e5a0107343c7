package control

import (
	"crypto/subtle"
	"encoding/base64"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

const (
	wsTokenPrefix     = "hyperspeed-token."
	wsPrimaryProtocol = "hyperspeed"
)

// Authorizer checks the bearer token and browser origin of control requests.
// An empty token disables token checks.
type Authorizer struct {
	Token          string
	AllowedOrigins []string
}

func (a Authorizer) checkAuth(r *http.Request) bool {
	if a.Token == "" {
		return true
	}
	if token, ok := bearerToken(r); ok {
		return secureTokenEqual(token, a.Token)
	}
	if token, ok := tokenFromWebSocketProtocols(r); ok {
		return secureTokenEqual(token, a.Token)
	}
	return false
}

func (a Authorizer) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if strings.EqualFold(parsed.Host, r.Host) {
		return true
	}
	for _, allowed := range a.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimRight(allowed, "/"), parsed.Scheme+"://"+parsed.Host) {
			return true
		}
	}
	return false
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, prefix))
	return token, token != ""
}

func tokenFromWebSocketProtocols(r *http.Request) (string, bool) {
	for _, proto := range websocket.Subprotocols(r) {
		encoded, ok := strings.CutPrefix(proto, wsTokenPrefix)
		if !ok || encoded == "" {
			continue
		}
		decoded, err := base64.RawURLEncoding.DecodeString(encoded)
		if err != nil || len(decoded) == 0 {
			continue
		}
		return string(decoded), true
	}
	return "", false
}

// tokenProtocol encodes token as a websocket subprotocol for browsers and
// clients that cannot set an Authorization header.
func tokenProtocol(token string) string {
	return wsTokenPrefix + base64.RawURLEncoding.EncodeToString([]byte(token))
}

func secureTokenEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
