package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/wolffsoft/catalog-service/internal/config"
	"github.com/wolffsoft/catalog-service/internal/db"
	"github.com/wolffsoft/catalog-service/internal/event"
	"github.com/wolffsoft/catalog-service/internal/kafka"
	"github.com/wolffsoft/catalog-service/internal/logger"
	"github.com/wolffsoft/catalog-service/internal/metrics"
	"github.com/wolffsoft/catalog-service/internal/repository"
	"github.com/wolffsoft/catalog-service/internal/util"
	"github.com/wolffsoft/catalog-service/internal/worker"
)

var publisherCmd = &cobra.Command{
	Use:   "publisher",
	Short: "Run the outbox publisher",
	RunE:  runPublisher,
}

func runPublisher(cmd *cobra.Command, args []string) error {
	// 1) load config
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	// 2) DB connection (MySQL)
	dbx, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
		PingTimeout:     cfg.MySQL.PingTimeout,
	})
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	defer dbx.Close()

	// 3) kafka producer
	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	// 4) instance id: stable within the process, unique across instances
	instanceID := cfg.Outbox.InstanceID
	if instanceID == "" {
		host, _ := os.Hostname()
		if host == "" {
			host = "publisher"
		}
		instanceID = host + "-" + util.New()
	}

	pub := worker.NewPublisher(
		repository.NewOutboxRepository(dbx),
		event.NewRegistry(cfg.Kafka.ProductEventsTopic),
		producer,
		logger.Log,
		instanceID,
		cfg.Outbox.BatchSize,
		cfg.Outbox.PollInterval,
		cfg.Outbox.StaleLockMaxAge,
	)

	// 5) graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf(">> publisher started instance=%s batchSize=%d pollInterval=%s staleLockMaxAge=%s",
		instanceID, pub.BatchSize, pub.PollInterval, pub.StaleLockMaxAge)

	return pub.Run(ctx)
}
