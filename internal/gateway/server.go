package gateway

import (
	"net/http"

	"github.com/rs/cors"
)

// NewServer builds the gateway HTTP server with CORS for the UI origin.
func NewServer(addr string, allowedOrigins []string, handler *Handler) *http.Server {
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedHeaders: []string{"*"},
	})

	return &http.Server{
		Addr:    addr,
		Handler: c.Handler(mux),
	}
}
