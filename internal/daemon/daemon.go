package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/edgeorchestra/edgeorchestra/internal/api"
	"github.com/edgeorchestra/edgeorchestra/internal/coordinator"
	"github.com/edgeorchestra/edgeorchestra/internal/fed/eval"
	"github.com/edgeorchestra/edgeorchestra/internal/health"
	"github.com/edgeorchestra/edgeorchestra/internal/heartbeat"
	"github.com/edgeorchestra/edgeorchestra/internal/infra/blob"
	"github.com/edgeorchestra/edgeorchestra/internal/infra/logging"
	_ "github.com/edgeorchestra/edgeorchestra/internal/infra/metrics" // register Prometheus collectors
	"github.com/edgeorchestra/edgeorchestra/internal/infra/sqlite"
	"github.com/edgeorchestra/edgeorchestra/internal/rpc"
)

// Daemon is the orchestrator runtime. It wires the state stores, the
// heartbeat monitor, the training coordinator, and both HTTP surfaces.
type Daemon struct {
	Config      Config
	DB          *sqlite.DB
	Blobs       blob.Store
	Monitor     *heartbeat.Monitor
	Coordinator *coordinator.Coordinator
	API         *api.Server
	RPC         *rpc.Server
	Health      *health.Checker

	log    zerolog.Logger
	cancel context.CancelFunc
}

// New creates a Daemon from the on-disk configuration.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with all services wired.
func NewWithConfig(cfg Config) (*Daemon, error) {
	log := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	dbDir := cfg.Database.Dir
	if dbDir == "" {
		dbDir = Home()
	}
	if err := os.MkdirAll(dbDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := sqlite.Open(dbDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var blobs blob.Store
	if cfg.Cache.URL != "" {
		rs, err := blob.NewRedisStore(cfg.Cache.URL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("connect cache: %w", err)
		}
		blobs = rs
		log.Info().Str("url", cfg.Cache.URL).Msg("using redis blob store")
	} else {
		blobs = blob.NewMemoryStore()
		log.Warn().Msg("no cache url configured, using in-process blob store")
	}

	interval := time.Duration(cfg.Heartbeat.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	multiplier := cfg.Heartbeat.TimeoutMultiplier
	if multiplier <= 0 {
		multiplier = 3
	}
	monitor := heartbeat.New(blobs, db, interval, multiplier, log)

	if err := os.MkdirAll(cfg.Training.DataDir, 0o700); err != nil {
		db.Close()
		return nil, fmt.Errorf("create training data dir: %w", err)
	}
	evaluator := eval.New(cfg.Training.DataDir, log)

	coordCfg := coordinator.DefaultConfig()
	if cfg.Training.RoundTimeoutSeconds > 0 {
		coordCfg.RoundTimeout = time.Duration(cfg.Training.RoundTimeoutSeconds) * time.Second
	}
	coord := coordinator.New(db, blobs, monitor, evaluator, coordCfg, log)

	apiSrv := api.NewServer(db, blobs, coord, cfg.API.APIKey, log)
	checker := health.NewChecker(db, blobs, cfg.Training.DataDir, log)
	apiSrv.SetHealthReporter(checker)

	return &Daemon{
		Config:      cfg,
		DB:          db,
		Blobs:       blobs,
		Monitor:     monitor,
		Coordinator: coord,
		API:         apiSrv,
		RPC:         rpc.NewServer(db, blobs, monitor, log),
		Health:      checker,
		log:         log.With().Str("component", "daemon").Logger(),
	}, nil
}

// Serve starts both listeners and the background loops, blocking until a
// signal arrives or ctx is canceled.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Health.Run(ctx)
	go d.Monitor.RunSweeper(ctx)
	go d.Coordinator.Run(ctx)

	apiAddr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	rpcAddr := fmt.Sprintf("%s:%d", d.Config.RPC.Host, d.Config.RPC.Port)

	apiServer := &http.Server{
		Addr:         apiAddr,
		Handler:      d.API.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}
	rpcServer := &http.Server{
		Addr:        rpcAddr,
		Handler:     d.RPC.Handler(),
		ReadTimeout: 5 * time.Minute,
		IdleTimeout: 5 * time.Minute,
	}

	errCh := make(chan error, 2)
	go func() { errCh <- d.listen(apiServer) }()
	go func() { errCh <- d.listen(rpcServer) }()

	d.log.Info().Str("api", apiAddr).Str("rpc", rpcAddr).
		Bool("tls", d.Config.TLS.Enabled).Msg("serving")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var cause error
	select {
	case sig := <-sigCh:
		d.log.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
	case cause = <-errCh:
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = apiServer.Shutdown(shutdownCtx)
	_ = rpcServer.Shutdown(shutdownCtx)
	_ = d.DB.Close()

	if cause != nil && cause != http.ErrServerClosed {
		return cause
	}
	return nil
}

func (d *Daemon) listen(srv *http.Server) error {
	if d.Config.TLS.Enabled {
		return srv.ListenAndServeTLS(d.Config.TLS.CertFile, d.Config.TLS.KeyFile)
	}
	return srv.ListenAndServe()
}

// Close shuts down daemon resources outside of Serve.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}
