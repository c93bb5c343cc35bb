package daemon

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/heartlink/heartlink/internal/api"
	"github.com/heartlink/heartlink/internal/app/paired"
	"github.com/heartlink/heartlink/internal/app/turn"
	"github.com/heartlink/heartlink/internal/infra/genai"
	"github.com/heartlink/heartlink/internal/infra/observability"
	"github.com/heartlink/heartlink/internal/infra/sqlite"
	"github.com/heartlink/heartlink/internal/infra/token"
)

// ─── Daemon ─────────────────────────────────────────────────────────────────

// Daemon is the assembled HeartLink service.
type Daemon struct {
	cfg    Config
	log    *zap.Logger
	db     *sqlite.DB
	server *http.Server
}

// New assembles the daemon from configuration.
func New(cfg Config) (*Daemon, error) {
	log, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := sqlite.Open(cfg.Database.Dir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	secret, err := AuthSecret(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	issuer := token.New(secret, cfg.TokenTTL())

	genCfg := genai.DefaultConfig()
	if cfg.Generation.BaseURL != "" {
		genCfg.BaseURL = cfg.Generation.BaseURL
	}
	if cfg.Generation.Model != "" {
		genCfg.Model = cfg.Generation.Model
	}
	if cfg.Generation.Temperature > 0 {
		genCfg.Temperature = cfg.Generation.Temperature
	}
	genCfg.APIKey = cfg.Generation.APIKey
	genCfg.Timeout = cfg.GenerationTimeout()
	backend := genai.New(genCfg, log)

	metrics := observability.New()
	recorder := turn.NewRecorder(db, metrics, log)
	pairedCoord := paired.New(db, db, db, metrics, log)
	orch := turn.NewOrchestrator(db, db, backend, recorder, pairedCoord, metrics, log)

	server := api.NewServer(orch, issuer, db, db, log)
	hub := api.NewCreditsHub()
	server.SetCreditsHub(hub)
	orch.SetNotifier(hub.Broadcast)
	if cfg.Metrics.Enabled {
		server.EnableMetrics()
	}

	return &Daemon{
		cfg: cfg,
		log: log,
		db:  db,
		server: &http.Server{
			Addr:    cfg.ListenAddr(),
			Handler: server.Handler(),
		},
	}, nil
}

// Run serves the API until SIGINT/SIGTERM, then shuts down gracefully.
func (d *Daemon) Run() error {
	errCh := make(chan error, 1)
	go func() {
		d.log.Info("heartlink daemon listening", zap.String("addr", d.server.Addr))
		if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		d.db.Close()
		return fmt.Errorf("serve: %w", err)
	case sig := <-stop:
		d.log.Info("shutting down", zap.String("signal", sig.String()))
	}

	// In-flight reply streams get a grace window to finish
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := d.server.Shutdown(ctx); err != nil {
		d.log.Warn("shutdown", zap.Error(err))
	}

	if err := d.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	d.log.Info("daemon stopped")
	return nil
}

// ─── Auth Secret ────────────────────────────────────────────────────────────

// AuthSecret resolves the token-signing secret: the configured value if set,
// otherwise a generated one persisted at ~/.heartlink/secret.key so the
// daemon and the CLI token command sign consistently across restarts.
func AuthSecret(cfg Config) (string, error) {
	if cfg.Auth.Secret != "" {
		return cfg.Auth.Secret, nil
	}

	path := filepath.Join(HomeDir(), "secret.key")
	if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
		return string(data), nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	secret := hex.EncodeToString(buf)

	if err := os.MkdirAll(HomeDir(), 0700); err != nil {
		return "", fmt.Errorf("create home directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(secret), 0600); err != nil {
		return "", fmt.Errorf("persist secret: %w", err)
	}
	return secret, nil
}
