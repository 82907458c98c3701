package rest

import (
	"net/http"

	"github.com/giwa-chain/giwa-walletd/api"
	"github.com/giwa-chain/giwa-walletd/audit"
	"github.com/giwa-chain/giwa-walletd/client"
	"github.com/giwa-chain/giwa-walletd/wallet"

	"github.com/gorilla/mux"
)

func setupRouter(manager *wallet.Manager, chain *client.Client, wsHub *api.WSHub, auditSink *audit.MemorySink) http.Handler {
	r := mux.NewRouter()

	// Middleware setup
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	// Base route
	r.HandleFunc("/", HomeHandler).Methods("GET")

	// WebSocket endpoint (live security event stream)
	r.HandleFunc("/ws", api.HandleWebSocket(wsHub))

	apiRouter := r.PathPrefix("/api/v1").Subrouter()

	// Wallet lifecycle
	apiRouter.HandleFunc("/wallet", CreateWallet(manager)).Methods("POST")
	apiRouter.HandleFunc("/wallet", DeleteWallet(manager)).Methods("DELETE")
	apiRouter.HandleFunc("/wallet/recover", RecoverWallet(manager)).Methods("POST")
	apiRouter.HandleFunc("/wallet/import", ImportPrivateKey(manager)).Methods("POST")
	apiRouter.HandleFunc("/wallet/load", LoadWallet(manager)).Methods("POST")
	apiRouter.HandleFunc("/wallet/status", GetWalletStatus(manager)).Methods("GET")
	apiRouter.HandleFunc("/wallet/account", GetAccount(manager)).Methods("GET")

	// Sensitive exports (rate limited)
	apiRouter.HandleFunc("/wallet/export/mnemonic", ExportMnemonic(manager)).Methods("POST")
	apiRouter.HandleFunc("/wallet/export/privatekey", ExportPrivateKey(manager)).Methods("POST")

	// Signing with the hot account
	apiRouter.HandleFunc("/wallet/sign", SignMessage(manager)).Methods("POST")
	apiRouter.HandleFunc("/wallet/transfer", Transfer(manager, chain)).Methods("POST")

	// Chain reads
	apiRouter.HandleFunc("/address/{address}/balance", GetBalance(chain)).Methods("GET")
	apiRouter.HandleFunc("/chain/id", GetChainID(chain)).Methods("GET")

	// Security review
	apiRouter.HandleFunc("/audit/events", GetAuditEvents(auditSink)).Methods("GET")
	apiRouter.HandleFunc("/ws/status", GetWSStatus(wsHub)).Methods("GET")

	return r
}
