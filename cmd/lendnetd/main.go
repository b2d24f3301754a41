package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"lendnet/config"
	"lendnet/core"
	"lendnet/native/loans"
	"lendnet/observability/logging"
	"lendnet/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("LENDNET_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("lendnetd", env, cfg.LogFile)

	db, err := openBackend(cfg)
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	nodeCfg, err := buildNodeConfig(cfg)
	if err != nil {
		logger.Error("Invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	node, err := core.NewNode(db, nodeCfg, logger)
	if err != nil {
		logger.Error("Failed to construct node", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.FeeBps > 0 {
		if err := node.SetTransferFee(nodeCfg.Owner, cfg.FeeBps); err != nil {
			logger.Error("Failed to apply transfer fee", slog.Any("error", err))
			os.Exit(1)
		}
	}

	logger.Info("lendnetd started",
		slog.String("backend", cfg.Backend),
		slog.String("dataDir", cfg.DataDir),
		slog.String("oracle", cfg.OracleAddress),
		slog.String("owner", cfg.Owner))

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	logger.Info("lendnetd shutting down")
}

func openBackend(cfg *config.Config) (storage.Database, error) {
	switch cfg.Backend {
	case "leveldb":
		return storage.NewLevelDB(cfg.DataDir)
	case "bolt":
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "state.db"))
	case "memory":
		return storage.NewMemDB(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func buildNodeConfig(cfg *config.Config) (core.Config, error) {
	oracleAddr, err := cfg.OracleAddr()
	if err != nil {
		return core.Config{}, err
	}
	ownerAddr, err := cfg.OwnerAddr()
	if err != nil {
		return core.Config{}, err
	}
	baseLoan, err := cfg.BaseLoan()
	if err != nil {
		return core.Config{}, err
	}
	faucet, err := cfg.Faucet()
	if err != nil {
		return core.Config{}, err
	}

	return core.Config{
		Oracle:   oracleAddr,
		Owner:    ownerAddr,
		MinScore: cfg.MinScore,
		MaxScore: cfg.MaxScore,
		LoanParams: loans.Params{
			MinRequiredScore:    cfg.MinRequiredScore,
			BaseLoanAmount:      baseLoan,
			BaseInterestRateBps: cfg.BaseInterestRateBps,
		},
		TokenSymbol:  cfg.TokenSymbol,
		FaucetAmount: faucet,
	}, nil
}
