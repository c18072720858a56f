// Command notifier consumes queued notification requests from RabbitMQ and
// delivers them to the recipient's devices.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"auction-engine/internal/config"
	"auction-engine/internal/notification"
	"auction-engine/internal/repository"
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

	n := cfg.Notifications
	if n.AMQPURL == "" {
		utils.Fatal("notifier requires notifications.amqp_url", nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := repository.Open(ctx, cfg.Store)
	if err != nil {
		utils.Fatal("failed to open store", map[string]any{"driver": cfg.Store.Driver, "error": err.Error()})
	}
	defer closeStore()

	sender, err := notification.NewPushSender(ctx, cfg.Push.Provider, cfg.Push.CredentialsFile)
	if err != nil {
		utils.Fatal("failed to create push sender", map[string]any{"provider": cfg.Push.Provider, "error": err.Error()})
	}

	conn, ch, err := notification.Connect(n.AMQPURL, n.Exchange, n.Queue, n.RoutingKey)
	if err != nil {
		utils.Fatal("failed to connect to rabbitmq", map[string]any{"error": err.Error()})
	}
	defer conn.Close()
	defer ch.Close()

	consumer := notification.NewConsumer(notification.NewDispatcher(store, sender), n.Timeout)
	if err := consumer.Run(ctx, ch, n.Queue); err != nil {
		utils.Error("notifier stopped", map[string]any{"queue": n.Queue, "error": err.Error()})
		return
	}
	utils.Info("notifier shut down", nil)
}
