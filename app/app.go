package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/giwa-chain/giwa-walletd/api/rest"
	"github.com/giwa-chain/giwa-walletd/audit"
	"github.com/giwa-chain/giwa-walletd/client"
	"github.com/giwa-chain/giwa-walletd/common/logger"
	conf "github.com/giwa-chain/giwa-walletd/config"
	"github.com/giwa-chain/giwa-walletd/keystore"
	"github.com/giwa-chain/giwa-walletd/ratelimit"
	"github.com/giwa-chain/giwa-walletd/wallet"

	"github.com/jonboulle/clockwork"
)

// auditEventsRetained bounds the in-memory audit buffer served by the API.
const auditEventsRetained = 1000

type App struct {
	stop       chan struct{}
	Conf       conf.Config
	Store      keystore.SecureStore
	Limiter    *ratelimit.Limiter
	Audit      *audit.Logger
	Wallet     *wallet.Manager
	Chain      *client.Client
	restServer *rest.Server
}

func New(configPath string) (*App, error) {
	cfg, err := conf.NewConfig(configPath)
	if err != nil {
		fmt.Println("Failed to initialize application: ", err)
		return nil, err
	}

	if err := logger.InitLogger(cfg); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	passphrase, err := keystore.PromptPassphrase()
	if err != nil {
		logger.Error("Failed to read keystore passphrase: ", err)
		return nil, err
	}

	auth := keystore.NewTermAuthenticator(passphrase)
	store, err := keystore.Open(cfg, passphrase, auth)
	if err != nil {
		logger.Error("Failed to open keystore: ", err)
		return nil, err
	}
	logger.Info("Keystore opened at ", cfg.Keystore.Dir)

	clock := clockwork.NewRealClock()

	// Limiter and audit logger are process singletons: export counters and
	// the event trail must survive wallet manager teardown within a session.
	limiter := ratelimit.New(clock)
	auditLog := audit.New(clock, audit.NewZapSink(logger.Zap()))
	memSink := audit.NewMemorySink(auditEventsRetained)
	auditLog.AddSink(memSink)

	manager := wallet.NewManager(wallet.ManagerConfig{
		Store:          store,
		Limiter:        limiter,
		Audit:          auditLog,
		Clock:          clock,
		Prefix:         cfg.Keystore.Prefix,
		AccountTimeout: cfg.AccountTimeout(),
		ExportPolicy: ratelimit.Config{
			MaxAttempts: cfg.Export.MaxAttempts,
			Window:      cfg.ExportWindow(),
			Cooldown:    cfg.ExportCooldown(),
		},
	})

	chain := client.New(cfg.Chain.RPCURL, cfg.Chain.ChainID)

	app := &App{
		stop:    make(chan struct{}),
		Conf:    *cfg,
		Store:   store,
		Limiter: limiter,
		Audit:   auditLog,
		Wallet:  manager,
		Chain:   chain,
	}

	// Initialize REST API server
	app.restServer = rest.NewServer(cfg.Common.Port, manager, chain, memSink)

	// Stream security events to connected websocket clients
	auditLog.AddSink(app.restServer.GetWSHub().Sink())

	return app, nil
}

func (p *App) NewRest() error {
	if err := p.restServer.Start(); err != nil {
		return fmt.Errorf("failed to start REST API server: %w", err)
	}

	logger.Info("All services started")
	return nil
}

// StartAll starts every service of the wallet daemon.
func (p *App) StartAll() error {
	if err := p.NewRest(); err != nil {
		return err
	}

	if p.Wallet.HasWallet() {
		logger.Info("Existing wallet found, load it via POST /api/v1/wallet/load")
	} else {
		logger.Info("No wallet yet, create one via POST /api/v1/wallet")
	}

	logger.Info("All services started successfully")
	return nil
}

// Cleanup releases every resource in reverse start order.
func (p *App) Cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Drop hot key material before anything else
	if p.Wallet != nil {
		p.Wallet.Destroy()
		logger.Info("Wallet manager destroyed")
	}

	if p.restServer != nil {
		if err := p.restServer.Stop(ctx); err != nil {
			logger.Error("Error stopping REST API server:", err)
		}
	}

	if p.Chain != nil {
		p.Chain.Close()
	}

	if p.Store != nil {
		if err := p.Store.Close(); err != nil {
			logger.Error("Error closing keystore:", err)
		}
	}

	logger.Info("All resources cleaned up")
}

func (p *App) Wait() {
	<-p.stop
}

func (p *App) Terminate() {
	p.Cleanup()
	close(p.stop)
}

func (p *App) SigHandler() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Arrived terminate signal: ", sig)
		p.Terminate()
	}()
}
