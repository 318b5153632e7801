package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fusd/config"
	"fusd/core/events"
	"fusd/core/state"
	"fusd/core/types"
	"fusd/crypto"
	nativecommon "fusd/native/common"
	"fusd/native/synth"
	"fusd/native/token"
	"fusd/observability/logging"
	"fusd/rpc"
	"fusd/storage"
)

const (
	operatorPassEnv = "FUSD_OPERATOR_PASS"
	debtSymbol      = "FUSD"
	debtDecimals    = 18
)

var allocationsAppliedKey = []byte("genesis/allocations-applied")

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.SetupWithRotation("fusdd", cfg.Env, cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	manager := state.NewManager(db)

	operatorKey, err := crypto.LoadFromKeystore(cfg.OperatorKeystorePath, os.Getenv(operatorPassEnv))
	if err != nil {
		panic(fmt.Sprintf("Failed to load operator key: %v", err))
	}
	vault := crypto.NewAddress(crypto.VaultPrefix, operatorKey.PubKey().Address().Bytes())

	engine, debtToken, err := buildEngine(cfg, manager, vault, logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to build engine: %v", err))
	}

	if err := applyAllocations(db, manager, cfg.Allocations, vault, logger); err != nil {
		panic(fmt.Sprintf("Failed to apply allocations: %v", err))
	}

	server := rpc.NewServer(engine, debtToken)
	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("RPC server listening", slog.String("address", cfg.RPCAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("RPC server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", slog.Any("error", err))
	}
}

// buildEngine wires the synth engine to its persistence, oracle feeds, token
// collaborators and pause registry from the loaded configuration.
func buildEngine(cfg *config.Config, manager *state.Manager, vault crypto.Address, logger *slog.Logger) (*synth.Engine, *token.Token, error) {
	assets := make([]synth.Asset, 0, len(cfg.Engine.Assets))
	feeds := make([]synth.PriceFeed, 0, len(cfg.Engine.Assets))
	for _, assetCfg := range cfg.Engine.Assets {
		assets = append(assets, synth.Asset{Symbol: assetCfg.Symbol, Decimals: assetCfg.Decimals})
		feeds = append(feeds, synth.NewHTTPFeed(nil, assetCfg.FeedURL, assetCfg.Symbol))
	}

	engine, err := synth.NewEngine(vault, assets, feeds, cfg.Engine.MaxQuoteAge())
	if err != nil {
		return nil, nil, err
	}
	engine.SetState(manager)
	engine.SetEmitter(&logEmitter{log: logger})
	engine.SetPauses(nativecommon.NewPauseSet())

	for _, asset := range assets {
		collateral := token.NewToken(manager, asset.Symbol, asset.Decimals, vault)
		if err := engine.SetCollateralToken(asset.Symbol, collateral); err != nil {
			return nil, nil, err
		}
	}
	debtToken := token.NewToken(manager, debtSymbol, debtDecimals, vault)
	engine.SetDebtToken(debtToken)
	return engine, debtToken, nil
}

// applyAllocations seeds configured token balances exactly once per data
// directory. The marker key makes restarts idempotent.
func applyAllocations(db storage.Database, manager *state.Manager, allocations []config.Allocation, vault crypto.Address, logger *slog.Logger) error {
	if len(allocations) == 0 {
		return nil
	}
	if _, err := db.Get(allocationsAppliedKey); err == nil {
		return nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	for _, alloc := range allocations {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(alloc.Address))
		if err != nil {
			return fmt.Errorf("allocation for %q: %w", alloc.Address, err)
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(alloc.Amount), 10)
		if !ok || amount.Sign() <= 0 {
			return fmt.Errorf("allocation for %q: invalid amount %q", alloc.Address, alloc.Amount)
		}
		ledger := token.NewToken(manager, alloc.Token, debtDecimals, vault)
		if !ledger.Mint(addr, amount) {
			return fmt.Errorf("allocation for %q: mint failed", alloc.Address)
		}
		logger.Info("Applied allocation",
			slog.String("address", alloc.Address),
			slog.String("token", strings.ToUpper(strings.TrimSpace(alloc.Token))),
			slog.String("amount", amount.String()),
		)
	}
	return db.Put(allocationsAppliedKey, []byte("1"))
}

// logEmitter writes engine boundary events to the structured log.
type logEmitter struct {
	log *slog.Logger
}

func (l *logEmitter) Emit(ev events.Event) {
	if l == nil || l.log == nil || ev == nil {
		return
	}
	attrs := []any{slog.String("event", ev.EventType())}
	if detailed, ok := ev.(interface{ Event() *types.Event }); ok {
		if payload := detailed.Event(); payload != nil {
			for key, value := range payload.Attributes {
				attrs = append(attrs, slog.String(key, value))
			}
		}
	}
	l.log.Info("engine event", attrs...)
}
