package relay

import (
	"net/http"

	"github.com/rs/cors"
)

// NewCORS builds the origin policy shared by HTTP routes and WebSocket upgrades
func NewCORS(allowedOrigins []string) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedHeaders: []string{"*"},
		MaxAge:         86400, // 24 hours
	})
}

// checkOrigin admits clients without an Origin header (non-browser clients)
// and browsers whose origin passes the CORS policy.
func checkOrigin(c *cors.Cors) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if r.Header.Get("Origin") == "" {
			return true
		}
		return c.OriginAllowed(r)
	}
}
