package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"leverlend/config"
	"leverlend/core/events"
	"leverlend/crypto"
	"leverlend/exchange"
	"leverlend/native/liquidator"
	"leverlend/native/strategy"
	"leverlend/native/vault"
	"leverlend/observability/logging"
	"leverlend/rpc"
	"leverlend/state"
	"leverlend/storage"
)

const adminEnv = "LEVERLEND_ADMIN"

// moduleAccount derives a deterministic protocol-owned address from a name.
func moduleAccount(name string) crypto.Address {
	sum := sha256.Sum256([]byte(name))
	return crypto.NewAddress(crypto.ModulePrefix, sum[:crypto.AddressLength])
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch cfg.Backend {
	case "level":
		return storage.NewLevelDB(cfg.DataDir)
	case "bolt":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "state.db"))
	case "memory":
		return storage.NewMemDB(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func resolveAdmin(cfg *config.Config, logger *slog.Logger) (crypto.Address, error) {
	source := strings.TrimSpace(cfg.Admin)
	if env := strings.TrimSpace(os.Getenv(adminEnv)); env != "" {
		source = env
	}
	if source != "" {
		return crypto.DecodeAddress(source)
	}
	// Development fallback. Real deployments set Admin in the config or
	// through the environment.
	logger.Warn("no admin address configured, using the development admin account")
	return moduleAccount("leverlend/dev-admin"), nil
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	listenFlag := flag.String("listen", "", "Listen address override")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *listenFlag != "" {
		cfg.ListenAddress = *listenFlag
	}

	logger := logging.Setup("levlendd", cfg.NetworkName, cfg.LogFile)

	admin, err := resolveAdmin(cfg, logger)
	if err != nil {
		logger.Error("Failed to resolve admin address", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)
	recorder := events.NewRecorder()
	now := uint64(time.Now().Unix())

	vaultEngine := vault.NewEngine(moduleAccount("leverlend/vault"), admin)
	vaultEngine.SetState(manager)
	vaultEngine.SetEmitter(recorder)
	vaultEngine.SetTime(now)
	vaultEngine.SetDefaultUnlockTime(cfg.Protocol.UnlockTimeSeconds)

	dealer := exchange.NewDealer(moduleAccount("leverlend/dealer"))
	dealer.SetLedger(manager)

	strategyEngine := strategy.NewEngine(moduleAccount("leverlend/strategy/margin"), admin)
	strategyEngine.SetState(manager)
	strategyEngine.SetLender(vaultEngine)
	strategyEngine.SetAdapter(dealer)
	strategyEngine.SetEmitter(recorder)
	strategyEngine.SetTime(now)

	liquidatorEngine := liquidator.NewEngine(moduleAccount("leverlend/liquidator"))
	liquidatorEngine.SetEmitter(recorder)
	liquidatorEngine.RegisterStrategy(strategyEngine)
	strategyEngine.SetLiquidator(liquidatorEngine.Address())

	// The built-in margin strategy always holds borrow rights.
	if registered, err := manager.IsStrategy(strategyEngine.Address()); err != nil {
		logger.Error("Failed to read strategy registry", slog.Any("error", err))
		os.Exit(1)
	} else if !registered {
		if err := vaultEngine.AddStrategy(admin, strategyEngine.Address()); err != nil {
			logger.Error("Failed to register margin strategy", slog.Any("error", err))
			os.Exit(1)
		}
		recorder.Reset()
	}

	server := rpc.NewServer(vaultEngine, strategyEngine, liquidatorEngine, manager, dealer, recorder, logger)
	server.SetClock(func() uint64 { return uint64(time.Now().Unix()) })

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting levlendd",
		"listen", cfg.ListenAddress,
		"backend", cfg.Backend,
		"network", cfg.NetworkName,
		"admin", admin.String(),
	)
	if err := server.Serve(ctx, cfg.ListenAddress); err != nil {
		logger.Error("Server exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("levlendd stopped")
}
