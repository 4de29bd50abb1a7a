package main

import (
	"context"
	"database/sql"
	"flag"
	"log"

	_ "github.com/go-sql-driver/mysql"

	"github.com/rl1809/stock-settlement/internal/config"
)

// Seeds one (variant, warehouse) inventory record for local runs.
func main() {
	variantID := flag.Int64("variant", 1, "product variant id")
	warehouseID := flag.Int64("warehouse", 1, "warehouse id")
	stock := flag.Int("stock", 100, "stock quantity")
	active := flag.Bool("active", true, "warehouse active")
	flag.Parse()

	cfg := config.Load()

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("failed to open mysql: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO inventory_records (product_variant_id, warehouse_id, stock_quantity, warehouse_active)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE stock_quantity = VALUES(stock_quantity), warehouse_active = VALUES(warehouse_active)`,
		*variantID, *warehouseID, *stock, *active)
	if err != nil {
		log.Fatalf("failed to seed inventory: %v", err)
	}

	log.Printf("seeded variant %d in warehouse %d with stock %d", *variantID, *warehouseID, *stock)
}
