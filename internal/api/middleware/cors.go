package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// Local origins allowed when none are configured
var defaultOrigins = []string{
	"http://localhost:3000",
	"http://localhost:8080",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:8080",
}

const (
	corsAllowMethods  = "GET, POST, OPTIONS"
	corsAllowHeaders  = "Accept, Content-Type, X-Request-ID"
	corsExposeHeaders = "X-Request-ID, X-Trace-ID"
	corsMaxAge        = 24 * 60 * 60
)

// CORSMiddleware answers cross-origin requests from editor front-ends
type CORSMiddleware struct {
	anyOrigin   bool
	exact       map[string]struct{}
	suffixes    []string // from "*.example.com" entries, stored as ".example.com"
	allowed     map[string]struct{}
	credentials bool
}

// NewCORSMiddlewareForOrigins builds CORS middleware from the configured origins.
// An empty list allows local development origins only. "*" allows any origin and
// "*.example.com" allows every subdomain of example.com.
func NewCORSMiddlewareForOrigins(origins []string) *CORSMiddleware {
	if len(origins) == 0 {
		origins = defaultOrigins
	}

	c := &CORSMiddleware{
		exact:       make(map[string]struct{}, len(origins)),
		allowed:     make(map[string]struct{}),
		credentials: true,
	}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		switch {
		case o == "":
		case o == "*":
			c.anyOrigin = true
		case strings.HasPrefix(o, "*."):
			c.suffixes = append(c.suffixes, o[1:])
		default:
			c.exact[o] = struct{}{}
		}
	}
	for _, h := range strings.Split(corsAllowHeaders, ",") {
		c.allowed[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}
	return c
}

// Handler returns the CORS middleware handler
func (c *CORSMiddleware) Handler() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := origin != "" && c.isOriginAllowed(origin)

			if origin != "" {
				w.Header().Add("Vary", "Origin")
			}
			if allowed {
				c.setCORSHeaders(w, origin)
			}

			if r.Method == http.MethodOptions {
				if !allowed {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				c.handlePreflight(w, r)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (c *CORSMiddleware) isOriginAllowed(origin string) bool {
	if c.anyOrigin {
		return true
	}
	if _, ok := c.exact[origin]; ok {
		return true
	}
	for _, suffix := range c.suffixes {
		if strings.HasSuffix(origin, suffix) {
			return true
		}
	}
	return false
}

func (c *CORSMiddleware) setCORSHeaders(w http.ResponseWriter, origin string) {
	w.Header().Set("Access-Control-Allow-Origin", origin)
	if c.credentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	w.Header().Set("Access-Control-Expose-Headers", corsExposeHeaders)
}

// handlePreflight echoes requested headers only when every one of them is allowed
func (c *CORSMiddleware) handlePreflight(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Methods", corsAllowMethods)

	headers := corsAllowHeaders
	if requested := r.Header.Get("Access-Control-Request-Headers"); requested != "" && c.headersAllowed(requested) {
		headers = requested
	}
	w.Header().Set("Access-Control-Allow-Headers", headers)
	w.Header().Set("Access-Control-Max-Age", strconv.Itoa(corsMaxAge))
	w.WriteHeader(http.StatusNoContent)
}

func (c *CORSMiddleware) headersAllowed(requested string) bool {
	for _, h := range strings.Split(requested, ",") {
		if _, ok := c.allowed[strings.ToLower(strings.TrimSpace(h))]; !ok {
			return false
		}
	}
	return true
}
