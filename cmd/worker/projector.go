package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/wolffsoft/catalog-service/internal/config"
	"github.com/wolffsoft/catalog-service/internal/db"
	"github.com/wolffsoft/catalog-service/internal/event"
	"github.com/wolffsoft/catalog-service/internal/kafka"
	"github.com/wolffsoft/catalog-service/internal/logger"
	"github.com/wolffsoft/catalog-service/internal/metrics"
	"github.com/wolffsoft/catalog-service/internal/repository"
	"github.com/wolffsoft/catalog-service/internal/service/search"
	"github.com/wolffsoft/catalog-service/internal/worker"
)

var projectorCmd = &cobra.Command{
	Use:   "projector",
	Short: "Run the search projection consumer",
	RunE:  runProjector,
}

func runProjector(cmd *cobra.Command, args []string) error {
	// 1) load config
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	// 2) DB connections: ClickHouse for the projection, MySQL for rebuilds
	chDB, err := db.NewClickHouseConnection(db.ClickHouseOpts{
		DSN:             cfg.ClickHouse.DSN,
		MaxOpenConns:    cfg.ClickHouse.MaxOpenConns,
		MaxIdleConns:    cfg.ClickHouse.MaxIdleConns,
		ConnMaxLifetime: cfg.ClickHouse.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ClickHouse.ConnMaxIdleTime,
		PingTimeout:     cfg.ClickHouse.PingTimeout,
	})
	if err != nil {
		return fmt.Errorf("clickhouse connect: %w", err)
	}
	defer chDB.Close()

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

	searchSvc := search.New(
		repository.NewSearchRepository(chDB),
		repository.NewProductsRepository(dbx),
		logger.Log,
	)

	// 3) kafka consumer
	groupID := cfg.Kafka.GroupID
	if groupID == "" {
		groupID = "catalog-projector"
	}
	consumer := kafka.NewConsumerFromConfig(kafka.Config{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          cfg.Kafka.ProductEventsTopic,
		GroupID:        groupID,
		MinBytes:       cfg.Kafka.MinBytes,
		MaxBytes:       cfg.Kafka.MaxBytes,
		CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
	})
	defer consumer.Close()

	proj := worker.NewProjector(
		consumer,
		event.NewRegistry(cfg.Kafka.ProductEventsTopic),
		searchSvc,
		logger.Log,
	)
	proj.CommitOnPoison = cfg.Projector.CommitOnPoison

	// 4) graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf(">> projector started topic=%s group=%s", cfg.Kafka.ProductEventsTopic, groupID)

	return proj.Run(ctx)
}
