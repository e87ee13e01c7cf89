package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"scalping-core/internal/api"
	"scalping-core/internal/events"
	"scalping-core/internal/monitor"
	"scalping-core/internal/order"
	"scalping-core/internal/risk"
	strat "scalping-core/internal/signal"
	"scalping-core/pkg/config"
	"scalping-core/pkg/db"
	"scalping-core/pkg/deriv"
)

// derivVenue adapts the protocol client to the order manager's placement
// surface.
type derivVenue struct {
	client *deriv.Client
}

func (v *derivVenue) PlaceContract(ctx context.Context, direction strat.Direction, symbol string, stake float64, durationTicks int) (order.Placement, error) {
	contractType := "CALL"
	if direction == strat.DirectionPut {
		contractType = "PUT"
	}
	res, err := v.client.Buy(ctx, deriv.BuyParameters{
		ContractType: contractType,
		Symbol:       symbol,
		Duration:     durationTicks,
		DurationUnit: "t",
		Amount:       stake,
		Basis:        "stake",
	})
	if err != nil {
		return order.Placement{}, err
	}
	return order.Placement{
		ContractID: strconv.FormatInt(res.ContractID, 10),
		BuyPrice:   res.BuyPrice,
		Payout:     res.Payout,
	}, nil
}

func limitsFromConfig(cfg *config.Config) risk.Limits {
	return risk.Limits{
		MaxStake:             cfg.MaxStake,
		MaxDailyLoss:         cfg.MaxDailyLoss,
		MaxConsecutiveLosses: cfg.MaxConsecutiveLosses,
		MaxTradesPerHour:     cfg.MaxTradesPerHour,
		MaxTradesPerDay:      cfg.MaxTradesPerDay,
		Cooldown:             time.Duration(cfg.CooldownMinutes) * time.Minute,
		MinBalance:           cfg.MinBalanceToTrade,
		MaxDrawdownPercent:   cfg.MaxDrawdownPercent,
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config invalid: %v", err)
	}
	log.Printf("scalping-core starting (symbol %s, port %s)", cfg.Symbol, cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("database init failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("database migrations failed: %v", err)
	}

	limits := limitsFromConfig(cfg)
	if cfg.RiskConfigPath != "" {
		limits, err = risk.LoadLimits(cfg.RiskConfigPath, limits)
		if err != nil {
			log.Fatalf("risk config load failed: %v", err)
		}
		log.Printf("risk limits overridden from %s", cfg.RiskConfigPath)
	}
	gate, err := risk.NewGate(limits, database, bus)
	if err != nil {
		log.Fatalf("risk gate init failed: %v", err)
	}

	client := deriv.NewClient(deriv.Options{
		URL:                  cfg.DerivWSURL,
		AppID:                cfg.DerivAppID,
		Token:                cfg.DerivToken,
		RequestTimeout:       cfg.RequestTimeout,
		PingInterval:         cfg.PingInterval,
		ReconnectBase:        cfg.ReconnectBase,
		ReconnectCap:         cfg.ReconnectCap,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		RateLimitCalls:       cfg.RateLimitCalls,
		RateLimitWindow:      cfg.RateLimitWindow,
		RateLimitMaxWait:     cfg.RateLimitMaxWait,
	})
	if err := client.Connect(ctx); err != nil {
		log.Fatalf("venue connection failed: %v", err)
	}

	manager := order.NewManager(order.Config{
		Venue:          &derivVenue{client: client},
		Gate:           gate,
		Database:       database,
		Bus:            bus,
		Symbol:         cfg.Symbol,
		TickInterval:   cfg.TickInterval,
		ExpiryMargin:   cfg.ExpiryMargin,
		SweepInterval:  cfg.SweepInterval,
		CompletedLimit: cfg.CompletedLimit,
	})
	if err := manager.Load(ctx); err != nil {
		log.Fatalf("order state load failed: %v", err)
	}
	manager.Start(ctx)

	if err := client.SubscribeContractStatus(ctx, manager.HandleContractUpdate); err != nil {
		log.Fatalf("contract status subscription failed: %v", err)
	}
	if err := client.SubscribeTicks(ctx, cfg.Symbol, func(tick deriv.Tick) {
		bus.Publish(events.EventPriceTick, tick)
	}); err != nil {
		log.Fatalf("tick subscription failed: %v", err)
	}

	(&monitor.Monitor{Bus: bus}).Start(ctx)

	server := api.NewServer(bus, database, gate, manager, client,
		api.SystemMeta{Symbol: cfg.Symbol, Venue: "deriv", Version: version()},
		cfg.JWTSecret, cfg.OperatorPasswordHash)
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("api server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("received %v, shutting down", sig)
	case <-client.Done():
		log.Printf("venue connection terminal: %v", client.Err())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	manager.Shutdown(shutdownCtx)
	client.Close()
	server.Close()
	cancel()
	log.Println("scalping-core stopped")
}

func version() string {
	if v := os.Getenv("APP_VERSION"); v != "" {
		return v
	}
	return "v1.0-dev"
}
