// Package main runs the buyback relay: a scheduler drives either an
// executing (actor) or observing (detector) purchase source, running totals
// are kept in memory, and events fan out to WebSocket dashboard clients.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"solana-buyback-relay/internal/buyback"
	"solana-buyback-relay/internal/hub"
	"solana-buyback-relay/internal/jupiter"
	"solana-buyback-relay/internal/logging"
	"solana-buyback-relay/internal/observability"
	"solana-buyback-relay/internal/solana"
	"solana-buyback-relay/internal/storage"
	"solana-buyback-relay/internal/storage/memory"
	"solana-buyback-relay/internal/storage/migrations"
	pgstore "solana-buyback-relay/internal/storage/postgres"
	"solana-buyback-relay/internal/wallet"
	"solana-buyback-relay/internal/web"
)

const defaultRPCEndpoint = "https://api.mainnet-beta.solana.com"

// Server holds the relay's components and runtime state.
type Server struct {
	mode      string
	source    buyback.Source
	scheduler *buyback.Scheduler
	tracker   *buyback.Tracker
	hub       *hub.Hub
	detector  *buyback.Detector // nil in actor mode
	journal   storage.BuybackJournal
	log       zerolog.Logger
	started   time.Time
}

func main() {
	// Load .env if present; real environment wins.
	godotenv.Load()

	port := flag.Int("port", envInt("PORT", 3003), "HTTP listen port")
	rpcEndpoint := flag.String("rpc-endpoint", envString("SOLANA_RPC", defaultRPCEndpoint), "Solana RPC HTTP endpoint")
	tokenAddress := flag.String("token-address", os.Getenv("TOKEN_ADDRESS"), "Tracked token mint")
	watchAddress := flag.String("watch-address", os.Getenv("WATCH_ADDRESS"), "Watched address (detector mode)")
	mode := flag.String("mode", envString("MODE", "detector"), "Operating mode: actor or detector")
	interval := flag.Duration("interval", envDuration("BUYBACK_INTERVAL", buyback.DefaultInterval), "Poll interval")
	spendSOL := flag.Float64("spend-sol", envFloat("BUYBACK_AMOUNT", buyback.DefaultSpendSOL), "SOL spent per buyback (actor mode)")
	jupiterURL := flag.String("jupiter-url", envString("JUPITER_URL", jupiter.DefaultBaseURL), "Jupiter API base URL")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL DSN for the audit journal (optional)")
	assetDir := flag.String("asset-dir", envString("ASSET_DIR", "web/public"), "Static asset directory")
	logLevel := flag.String("log-level", envString("LOG_LEVEL", "info"), "Log level")
	logFile := flag.String("log-file", os.Getenv("LOG_FILE"), "Rotating log file path (optional)")

	flag.Parse()

	log := logging.New(logging.Options{Level: *logLevel, FilePath: *logFile})

	if *mode != "actor" && *mode != "detector" {
		log.Fatal().Str("mode", *mode).Msg("mode must be actor or detector")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rpc := solana.NewHTTPClient(*rpcEndpoint)

	// The journal is optional bookkeeping: postgres when a DSN is given,
	// in-memory otherwise.
	journal, journalCleanup, err := createJournal(ctx, *postgresDSN, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create journal")
	}
	defer journalCleanup()

	source, walletAddress := createSource(rpc, sourceConfig{
		mode:         *mode,
		tokenMint:    *tokenAddress,
		watchAddress: *watchAddress,
		privateKey:   os.Getenv("DEV_WALLET_PK"),
		spendSOL:     *spendSOL,
		jupiterURL:   *jupiterURL,
	}, log)

	tracker := buyback.NewTracker()
	h := hub.New(hub.Config{
		TokenAddress:  *tokenAddress,
		WalletAddress: walletAddress,
	}, tracker.Snapshot, log)

	srv := &Server{
		mode:    *mode,
		source:  source,
		tracker: tracker,
		hub:     h,
		journal: journal,
		log:     log,
		started: time.Now(),
	}
	if d, ok := source.(*buyback.Detector); ok {
		srv.detector = d
	}

	if source != nil {
		warmup := time.Duration(0)
		if *mode == "actor" {
			warmup = buyback.DefaultWarmup
		}
		srv.scheduler = buyback.NewScheduler(source, tracker, journalAdapter{journal}, h, *interval, warmup, log)
		go srv.scheduler.Run(ctx)
	} else {
		log.Warn().Msg("source not configured, serving dashboard only")
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: srv.routes(*assetDir),
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Str("mode", *mode).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown on first signal; force exit on second.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down")
	cancel()

	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("forcing immediate shutdown")
		os.Exit(1)
	}()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}

	log.Info().Msg("shutdown complete")
}

// sourceConfig collects the inputs that decide which source runs.
type sourceConfig struct {
	mode         string
	tokenMint    string
	watchAddress string
	privateKey   string
	spendSOL     float64
	jupiterURL   string
}

// createSource builds the configured purchase source. Missing configuration
// is not fatal: the relay runs with no source and serves the dashboard. The
// returned address is the identity sent to clients in the config message.
func createSource(rpc solana.RPCClient, cfg sourceConfig, log zerolog.Logger) (buyback.Source, string) {
	if cfg.tokenMint == "" {
		log.Warn().Msg("TOKEN_ADDRESS not set")
		return nil, ""
	}

	switch cfg.mode {
	case "actor":
		if cfg.privateKey == "" {
			log.Warn().Msg("DEV_WALLET_PK not set, actor mode idle")
			return nil, ""
		}
		w, err := wallet.Load(cfg.privateKey)
		if err != nil {
			log.Error().Err(err).Msg("failed to load wallet, actor mode idle")
			return nil, ""
		}
		quoter := jupiter.NewClient(cfg.jupiterURL)
		exec := buyback.NewExecutor(rpc, quoter, w, buyback.ExecutorConfig{
			TokenMint: cfg.tokenMint,
			SpendSOL:  cfg.spendSOL,
		}, log)
		return exec, w.Address()

	default:
		if cfg.watchAddress == "" {
			log.Warn().Msg("WATCH_ADDRESS not set, detector mode idle")
			return nil, ""
		}
		det := buyback.NewDetector(rpc, buyback.DetectorConfig{
			WatchAddress: cfg.watchAddress,
			TokenMint:    cfg.tokenMint,
		}, log)
		return det, cfg.watchAddress
	}
}

// createJournal selects the journal backend. A DSN enables postgres with
// migrations applied at startup; otherwise events are journaled in memory.
func createJournal(ctx context.Context, dsn string, log zerolog.Logger) (storage.BuybackJournal, func(), error) {
	if dsn == "" {
		return memory.NewBuybackJournal(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}

	log.Info().Msg("postgres journal enabled")
	return pgstore.NewBuybackJournal(pool), pool.Close, nil
}

// journalAdapter bridges the scheduler's event shape onto the storage
// record shape.
type journalAdapter struct {
	journal storage.BuybackJournal
}

func (a journalAdapter) Record(ctx context.Context, ev buyback.Event, mode string) error {
	err := a.journal.Insert(ctx, &storage.BuybackRecord{
		Signature:      ev.TransactionID,
		Mode:           mode,
		SolSpent:       ev.SolSpent,
		TokensReceived: ev.TokensReceived,
	})
	// A duplicate means the event was already journaled; not a failure.
	if errors.Is(err, storage.ErrDuplicateKey) {
		return nil
	}
	return err
}

// routes builds the HTTP mux: WebSocket attach, health, status, metrics,
// and the static dashboard.
func (s *Server) routes(assetDir string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.hub.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/", web.NewStaticHandler(assetDir, s.log))

	return mux
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status           string        `json:"status"`
	Mode             string        `json:"mode"`
	Uptime           string        `json:"uptime"`
	SourceConfigured bool          `json:"source_configured"`
	ConnectedClients int           `json:"connected_clients"`
	Stats            buyback.Stats `json:"stats"`
	Cycles           int64         `json:"cycles"`
	FailedCycles     int64         `json:"failed_cycles"`
	SkippedCycles    int64         `json:"skipped_cycles"`
	SeenSignatures   int           `json:"seen_signatures,omitempty"`
	JournaledEvents  int64         `json:"journaled_events"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:           "running",
		Mode:             s.mode,
		Uptime:           time.Since(s.started).String(),
		SourceConfigured: s.source != nil,
		ConnectedClients: s.hub.ClientCount(),
		Stats:            s.tracker.Snapshot(),
	}
	if s.scheduler != nil {
		cycles := s.scheduler.Cycles()
		resp.Cycles = cycles.Cycles
		resp.FailedCycles = cycles.FailedCycles
		resp.SkippedCycles = cycles.Skipped
	}
	if s.detector != nil {
		resp.SeenSignatures = s.detector.SeenCount()
	}
	if s.journal != nil {
		if n, err := s.journal.Count(r.Context()); err == nil {
			resp.JournaledEvents = n
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Environment helpers: flags take their defaults from the environment.

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// Plain numbers are seconds, matching the old deployment's
		// BUYBACK_INTERVAL convention.
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}
