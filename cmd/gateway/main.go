package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradegate/config"
	"tradegate/internal/broker"
	"tradegate/internal/broker/registry"
	"tradegate/internal/logger"
	"tradegate/internal/metrics"
	"tradegate/internal/ratelimit"
	"tradegate/internal/routing"
	"tradegate/internal/sandbox"
	"tradegate/internal/session"
	redisstore "tradegate/internal/store/redis"
	sqlitestore "tradegate/internal/store/sqlite"
	"tradegate/internal/stream"
	"tradegate/internal/symbols"
)

func main() {
	cfg := config.Load()
	logger.Init("gateway", logger.ParseLevel(cfg.LogLevel))
	slog.Info("gateway starting", slog.String("broker", cfg.ActiveBroker))

	// ---- stores ----
	store, err := sqlitestore.Open(cfg.SQLitePath)
	if err != nil {
		slog.Error("sqlite open failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer store.Close()

	// The candle cache is optional: a dead Redis degrades historical reads,
	// it does not stop trading.
	candles, err := redisstore.New(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		slog.Warn("redis unavailable, candle cache disabled", slog.Any("err", err))
	} else {
		defer candles.Close()
	}

	// ---- core singletons ----
	m := metrics.New()
	health := metrics.NewHealth()
	health.Update(func(h *metrics.HealthStatus) {
		h.SQLiteOK = true
		h.RedisConnected = candles != nil
	})

	creds := registry.Credentials{
		broker.IDAngel: {
			APIKey:     cfg.AngelAPIKey,
			ClientID:   cfg.AngelClientCode,
			Password:   cfg.AngelPassword,
			TOTPSecret: cfg.AngelTOTPSecret,
		},
		broker.IDZerodha: {
			APIKey:    cfg.ZerodhaAPIKey,
			APISecret: cfg.ZerodhaAPISecret,
		},
		broker.IDFyers: {
			APIKey:    cfg.FyersAppID,
			APISecret: cfg.FyersAPISecret,
		},
	}
	reg := registry.New(creds)

	sess := session.New()
	cache := symbols.New()
	limiter := ratelimit.New()
	engine := sandbox.New(cfg.SandboxStartingCash, store)
	router := routing.New(sess, reg, cache, limiter, engine, store, store, m)

	// ---- warm state from the store ----
	if rows, err := store.LoadSymbols(); err != nil {
		slog.Warn("symbol preload failed", slog.Any("err", err))
	} else if len(rows) > 0 {
		cache.ReplaceAll(rows)
		m.SymbolsCached.Set(float64(len(rows)))
		slog.Info("symbol cache warmed", slog.Int("rows", len(rows)))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- broker session ----
	if err := login(ctx, cfg.ActiveBroker, creds[cfg.ActiveBroker], sess, reg, store); err != nil {
		slog.Warn("startup login failed, continuing unauthenticated", slog.Any("err", err))
	} else {
		health.Update(func(h *metrics.HealthStatus) { h.ActiveBroker = cfg.ActiveBroker })
		if cache.Len() == 0 {
			if n, err := router.RefreshMaster(ctx); err != nil {
				slog.Warn("master refresh failed", slog.Any("err", err))
			} else {
				slog.Info("master contract downloaded", slog.Int("rows", n))
			}
		}
	}

	// ---- streaming ----
	var proto stream.Protocol
	switch cfg.ActiveBroker {
	case broker.IDZerodha:
		proto = stream.NewZerodhaProtocol(cfg.ZerodhaAPIKey)
	case broker.IDFyers:
		proto = stream.NewFyersProtocol(cfg.FyersAppID)
	default:
		proto = stream.NewAngelProtocol(cfg.AngelAPIKey, cfg.AngelClientCode)
	}
	mgr := stream.NewManager(proto, m)
	if rows, err := store.LoadSymbols(); err == nil {
		mgr.RegisterTokens(rows)
	}
	if sess.Authenticated() {
		if err := mgr.Connect(ctx, sess.Auth()); err != nil {
			slog.Warn("stream connect failed", slog.Any("err", err))
		}
	}
	go consumeTicks(ctx, mgr, engine, health)

	// ---- metrics / health server ----
	srv := metrics.NewServer(cfg.MetricsAddr, health)
	srv.Start()

	<-ctx.Done()
	slog.Info("shutting down")

	mgr.Disconnect()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Stop(shutdownCtx)
}

// login restores a stored session when one exists, otherwise authenticates
// fresh and persists the result.
func login(ctx context.Context, brokerID string, creds broker.Credentials, sess *session.Session, reg *registry.Registry, store *sqlitestore.Store) error {
	adapter, ok := reg.Get(brokerID)
	if !ok {
		slog.Error("unknown broker id", slog.String("broker", brokerID))
		os.Exit(1)
	}

	if tok, err := store.GetAuthToken(brokerID); err == nil && tok != nil {
		auth := &broker.AuthSession{
			AuthToken:    tok.AuthToken,
			FeedToken:    tok.FeedToken,
			RefreshToken: tok.RefreshToken,
			UserID:       tok.UserID,
			UserName:     tok.UserName,
		}
		adapter.SetSession(auth)
		sess.Activate(brokerID, auth)
		slog.Info("session restored from store", slog.String("broker", brokerID))
		return nil
	}

	auth, err := adapter.Authenticate(ctx, creds)
	if err != nil {
		return err
	}
	sess.Activate(brokerID, auth)
	if err := store.StoreAuthToken(sqlitestore.AuthToken{
		Broker:       brokerID,
		AuthToken:    auth.AuthToken,
		FeedToken:    auth.FeedToken,
		RefreshToken: auth.RefreshToken,
		UserID:       auth.UserID,
		UserName:     auth.UserName,
	}); err != nil {
		slog.Warn("auth token persistence failed", slog.Any("err", err))
	}
	slog.Info("logged in", slog.String("broker", brokerID), slog.String("user", auth.UserID))
	return nil
}

// consumeTicks feeds decoded ticks into the sandbox so paper positions and
// pending simulated orders track the live market.
func consumeTicks(ctx context.Context, mgr *stream.Manager, engine *sandbox.Engine, health *metrics.HealthStatus) {
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-mgr.Ticks():
			if tick.Symbol == "" {
				continue
			}
			engine.UpdateLTP(tick.Exchange, tick.Symbol, tick.LTP)
			health.Update(func(h *metrics.HealthStatus) { h.StreamState = mgr.State().String() })
		}
	}
}
