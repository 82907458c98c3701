package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/giwa-chain/giwa-walletd/api"
	"github.com/giwa-chain/giwa-walletd/audit"
	"github.com/giwa-chain/giwa-walletd/client"
	"github.com/giwa-chain/giwa-walletd/common/logger"
	"github.com/giwa-chain/giwa-walletd/wallet"
)

// Server serves the wallet REST API
type Server struct {
	port       int
	httpServer *http.Server
	manager    *wallet.Manager
	chain      *client.Client
	wsHub      *api.WSHub
	auditSink  *audit.MemorySink
}

// NewServer creates the API server instance. auditSink backs the
// GET /audit/events endpoint and may be nil to disable it.
func NewServer(port int, manager *wallet.Manager, chain *client.Client, auditSink *audit.MemorySink) *Server {
	return &Server{
		port:      port,
		manager:   manager,
		chain:     chain,
		wsHub:     api.NewWSHub(),
		auditSink: auditSink,
	}
}

// Start runs the server in the background.
func (s *Server) Start() error {
	go s.wsHub.Run()

	router := setupRouter(s.manager, s.chain, s.wsHub, s.auditSink)

	addr := fmt.Sprintf(":%d", s.port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.Info("Wallet API server starting on port ", s.port)
	logger.Info("WebSocket available at ws://localhost:", s.port, "/ws")
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Wallet API server error: ", err)
		}
	}()

	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	logger.Info("Shutting down wallet API server...")
	return s.httpServer.Shutdown(ctx)
}

// GetWSHub returns the WebSocket hub for audit sink wiring.
func (s *Server) GetWSHub() *api.WSHub {
	return s.wsHub
}
