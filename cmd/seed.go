package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/wolffsoft/catalog-service/internal/config"
	"github.com/wolffsoft/catalog-service/internal/db"
	"github.com/wolffsoft/catalog-service/internal/model"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo products",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// 2) connect MySQL
		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		log.Println(">> Seeding demo products...")

		if err := seedProducts(sqlDB); err != nil {
			return err
		}

		log.Println(">> Seed completed ✅")
		return nil
	},
}

// seedProducts inserts 5 deterministic demo products (idempotent). IDs are
// fixed so repeated runs update the same rows instead of growing the table.
func seedProducts(dbx *sqlx.DB) error {
	products := []model.Product{
		{
			ID:          "01HZDEMO0000000000000PRDA1",
			Name:        "Walnut Desk",
			Description: "120x60cm solid walnut standing desk",
			PriceCents:  49900,
			Currency:    "EUR",
			Attributes:  `{"color":"walnut","width_cm":"120"}`,
		},
		{
			ID:          "01HZDEMO0000000000000PRDA2",
			Name:        "Ergonomic Chair",
			Description: "Mesh-back office chair with lumbar support",
			PriceCents:  22950,
			Currency:    "EUR",
			Attributes:  `{"color":"black"}`,
		},
		{
			ID:          "01HZDEMO0000000000000PRDA3",
			Name:        "Monitor Arm",
			Description: "Single gas-spring arm, VESA 75/100",
			PriceCents:  7900,
			Currency:    "EUR",
			Attributes:  `{"max_load_kg":"9"}`,
		},
		{
			ID:          "01HZDEMO0000000000000PRDA4",
			Name:        "Desk Lamp",
			Description: "Dimmable LED lamp, 2700-6500K",
			PriceCents:  3450,
			Currency:    "EUR",
			Attributes:  `{}`,
		},
		{
			ID:          "01HZDEMO0000000000000PRDA5",
			Name:        "Cable Tray",
			Description: "Under-desk cable management tray, 60cm",
			PriceCents:  1990,
			Currency:    "EUR",
			Attributes:  `{}`,
		},
	}

	// idempotent upsert based on id (PRIMARY KEY)
	const q = `
INSERT INTO products
    (id, name, description, price_cents, currency, attributes, created_at, updated_at)
VALUES
    (?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    name        = VALUES(name),
    description = VALUES(description),
    price_cents = VALUES(price_cents),
    currency    = VALUES(currency),
    attributes  = VALUES(attributes),
    updated_at  = VALUES(updated_at)
`
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	for _, p := range products {
		if _, err := tx.Exec(q, p.ID, p.Name, p.Description, p.PriceCents, p.Currency, p.Attributes, now, now); err != nil {
			return fmt.Errorf("insert product %q: %w", p.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit products: %w", err)
	}
	return nil
}
