package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/rachelchenchi/focuser/matching"
	"github.com/rachelchenchi/focuser/websocket"
)

const shutdownGracePeriod = 10 * time.Second

// Server wraps the HTTP listener exposing the websocket endpoint.
type Server struct {
	httpServer *http.Server
}

// NewServer creates a server listening on addr with the websocket endpoint
// mounted at /ws.
func NewServer(addr string, wsHandler http.HandlerFunc) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start runs the listener. Intended to be called in a goroutine; exits
// fatally on listen errors other than graceful shutdown.
func (s *Server) Start() {
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}
}

// Shutdown drains the broker and closes everything in dependency order:
// client connections first (which triggers disconnect cascades in the
// broker), then the broker itself, then the listener.
func (s *Server) Shutdown(ctx context.Context, manager *websocket.ClientManager, broker *matching.Broker) {
	log.Println("Shutting down: closing client connections")
	manager.CloseAllConnections("Server shutting down")
	manager.WaitForCompletion()

	broker.Close()

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownGracePeriod)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Println("Shutdown complete")
}
