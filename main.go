package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"auction-engine/internal/accounts"
	"auction-engine/internal/bg"
	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/config"
	model "auction-engine/internal/models"
	"auction-engine/internal/notification"
	"auction-engine/internal/repository"
	"auction-engine/internal/scheduler"
	"auction-engine/internal/server"
	"auction-engine/utils"
)

func main() {
	configPath := flag.String("config", os.Getenv("AUCTION_CONFIG"), "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		utils.Fatal("failed to load configuration", map[string]any{"error": err.Error()})
	}
	if err := utils.SetLevel(cfg.Log.Level); err != nil {
		utils.Fatal("invalid log level", map[string]any{"error": err.Error()})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := repository.Open(ctx, cfg.Store)
	if err != nil {
		utils.Fatal("failed to open store", map[string]any{"driver": cfg.Store.Driver, "error": err.Error()})
	}
	defer closeStore()

	if mem, ok := store.(*repository.MemoryRepo); ok {
		prepopulateProducts(mem)
	}

	queue, closeQueue, err := newQueue(ctx, cfg, store)
	if err != nil {
		utils.Fatal("failed to set up notifications", map[string]any{"mode": cfg.Notifications.Mode, "error": err.Error()})
	}
	defer closeQueue()

	authorizer := accounts.NewAuthorizer(store)
	accountSvc := accounts.NewService(authorizer, store)
	biddingSvc := bidding.NewBiddingService(store, authorizer, queue)

	if cfg.Sweep.Enabled {
		go scheduler.New(biddingSvc, store, cfg.Sweep.Interval, cfg.Sweep.LeaseTTL).Run(ctx)
	}

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.SetupRouter(biddingSvc, accountSvc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		utils.Info("starting auction server", map[string]any{"addr": cfg.Server.ListenAddr, "store": cfg.Store.Driver})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Fatal("failed to start server", map[string]any{"error": err.Error()})
		}
	}()

	<-ctx.Done()
	utils.Info("shutting down auction server", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Error("server shutdown failed", map[string]any{"error": err.Error()})
	}
}

// newQueue builds the post-commit notification queue. Inline mode delivers
// from this process; amqp mode hands requests to cmd/notifier.
func newQueue(ctx context.Context, cfg config.Config, tokens repository.TokenStore) (notification.Queue, func(), error) {
	n := cfg.Notifications
	if n.Mode == config.QueueAMQP {
		conn, ch, err := notification.Connect(n.AMQPURL, n.Exchange, n.Queue, n.RoutingKey)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			ch.Close()
			conn.Close()
		}
		return notification.NewAMQPQueue(ch, n.Exchange, n.RoutingKey), closeFn, nil
	}

	sender, err := notification.NewPushSender(ctx, cfg.Push.Provider, cfg.Push.CredentialsFile)
	if err != nil {
		return nil, nil, err
	}
	dispatcher := notification.NewDispatcher(tokens, sender)
	return notification.NewInlineQueue(dispatcher, bg.Async{}, n.Timeout), func() {}, nil
}

// prepopulateProducts adds sample listings and an admin to the in-memory store
func prepopulateProducts(repo *repository.MemoryRepo) {
	now := time.Now().UTC()
	products := []model.Product{
		{ID: "item1", Title: "Vintage camera", SaleType: model.SaleTypeAuction, StartPrice: decimal.NewFromInt(100), EndTime: now.Add(24 * time.Hour), SellerID: "seller1"},
		{ID: "item2", Title: "Oak bookshelf", SaleType: model.SaleTypeAuction, StartPrice: decimal.NewFromInt(200), EndTime: now.Add(2 * time.Hour), SellerID: "seller1"},
		{ID: "item3", Title: "Road bike", SaleType: model.SaleTypeDirectSale, StartPrice: decimal.NewFromInt(150), SellerID: "seller2"},
	}

	for _, p := range products {
		p.Status = model.StatusActive
		p.CurrentPrice = p.StartPrice
		p.CreatedAt = now
		repo.AddProduct(p)
	}
	repo.AddAdmin("admin")
}
