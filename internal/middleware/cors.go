package middleware

import (
	"net/http"
	"strings"
)

// CORSMiddleware answers preflight requests and stamps the allow headers on
// every response. OPTIONS is terminated here with no body; all other methods
// pass through.
type CORSMiddleware struct {
	allowedOrigins []string
	allowedMethods string
	allowedHeaders string
	allowAll       bool
}

func NewCORSMiddleware(allowedOrigins, allowedMethods, allowedHeaders string) *CORSMiddleware {
	m := &CORSMiddleware{
		allowedMethods: allowedMethods,
		allowedHeaders: allowedHeaders,
	}
	for _, o := range strings.Split(allowedOrigins, ",") {
		o = strings.TrimSpace(o)
		if o == "*" {
			m.allowAll = true
		}
		if o != "" {
			m.allowedOrigins = append(m.allowedOrigins, o)
		}
	}
	return m
}

func (m *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if m.originAllowed(origin) {
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			} else if m.allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", m.allowedMethods)
		w.Header().Set("Access-Control-Allow-Headers", m.allowedHeaders)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *CORSMiddleware) originAllowed(origin string) bool {
	if m.allowAll {
		return true
	}
	for _, o := range m.allowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}
