package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"paygate/internal/chain"
	"paygate/internal/config"
	"paygate/internal/gateway"
	"paygate/internal/payment"
	"paygate/internal/server"
	"paygate/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := newLogger(cfg.Service.LogLevel)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	var st store.Store = store.NewMemory()
	var closeStore func()
	if cfg.Storage.PostgresDSN != "" {
		pg, err := store.NewPostgres(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			logger.Fatal("postgres store error", zap.Error(err))
		}
		st = pg
		closeStore = pg.Close
	} else {
		logger.Warn("no postgres dsn configured, using in-memory store")
	}

	var reader chain.Reader = chain.NewFakeReader()
	var closeReader func()
	if cfg.Chain.RPCURL != "" {
		eth, err := chain.DialEthReader(ctx, cfg.Chain.RPCURL)
		if err != nil {
			logger.Fatal("chain reader error", zap.Error(err))
		}
		reader = eth
		closeReader = eth.Close
	} else {
		logger.Warn("no chain rpc url configured, payment verification will reject everything")
	}

	verifier := payment.NewVerifier(reader, cfg.Chain.TokenDecimals, cfg.Chain.MinConfirmations, cfg.Chain.VerifyTimeout, logger)
	dispatcher := gateway.NewDispatcher(st, verifier, cfg.Service.ForwardTimeout, logger)
	apiServer := server.NewServer(cfg, st, verifier, dispatcher, logger)

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Info("server stopped", zap.Error(err))
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = apiServer.Shutdown(shutdownCtx)

	if closeReader != nil {
		closeReader()
	}
	if closeStore != nil {
		closeStore()
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return cfg.Build()
}
