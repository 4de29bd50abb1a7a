package tests

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stock-settlement/internal/adapter/storage"
	"github.com/rl1809/stock-settlement/internal/core/domain"
	"github.com/rl1809/stock-settlement/internal/core/service"
)

type testEnv struct {
	mysql   *sql.DB
	redis   *redis.Client
	ledger  *storage.MySQLLedger
	orders  *storage.MySQLOrderStore
	comp    *service.CompensationService
	svc     *service.SettlementService
	cleanup func()
}

type recordingEmitter struct {
	events []domain.NotificationEvent
}

func (e *recordingEmitter) Emit(ctx context.Context, event domain.NotificationEvent) error {
	e.events = append(e.events, event)
	return nil
}

func setupTestEnv(t *testing.T) *testEnv {
	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/settlement?parseTime=true"
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	ledger := storage.NewMySQLLedger(db)
	orders := storage.NewMySQLOrderStore(db)
	guard := storage.NewRedisGuard(rdb, 30*time.Second)
	comp := service.NewCompensationService(orders, ledger, 1)
	svc := service.NewSettlementService(ledger, orders, comp, guard, &recordingEmitter{})

	return &testEnv{
		mysql:  db,
		redis:  rdb,
		ledger: ledger,
		orders: orders,
		comp:   comp,
		svc:    svc,
		cleanup: func() {
			rdb.Close()
			db.Close()
		},
	}
}

func (env *testEnv) seedRecord(t *testing.T, id, variantID, warehouseID int64, stock int) {
	t.Helper()
	_, err := env.mysql.Exec(`
		INSERT INTO inventory_records (id, product_variant_id, warehouse_id, stock_quantity, warehouse_active)
		VALUES (?, ?, ?, ?, 1)
		ON DUPLICATE KEY UPDATE stock_quantity = VALUES(stock_quantity), warehouse_active = 1`,
		id, variantID, warehouseID, stock)
	if err != nil {
		t.Fatalf("seed record: %v", err)
	}
}

func (env *testEnv) stock(t *testing.T, recordID int64) int {
	t.Helper()
	var stock int
	if err := env.mysql.QueryRow(`SELECT stock_quantity FROM inventory_records WHERE id = ?`, recordID).Scan(&stock); err != nil {
		t.Fatalf("read stock: %v", err)
	}
	return stock
}

func (env *testEnv) placeOrder(t *testing.T, lines ...domain.OrderLine) int64 {
	t.Helper()
	orderID, err := env.orders.CreateOrder(context.Background(), domain.Order{
		Status:   domain.OrderStatusPending,
		PlacedAt: time.Now(),
	}, lines)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return orderID
}

func (env *testEnv) deleteOrder(orderID int64) {
	env.mysql.Exec(`DELETE FROM order_status_history WHERE order_id = ?`, orderID)
	env.mysql.Exec(`DELETE FROM order_lines WHERE order_id = ?`, orderID)
	env.mysql.Exec(`DELETE FROM stock_restores WHERE order_id = ?`, orderID)
	env.mysql.Exec(`DELETE FROM line_settlements WHERE order_id = ?`, orderID)
	env.mysql.Exec(`DELETE FROM orders WHERE id = ?`, orderID)
}

func TestSettlement_EndToEnd(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()
	ctx := context.Background()

	env.seedRecord(t, 9501, 951, 1, 3)
	env.seedRecord(t, 9502, 951, 2, 5)

	orderID := env.placeOrder(t, domain.OrderLine{ProductVariantID: 951, Quantity: 6})
	defer env.deleteOrder(orderID)

	item := domain.WorkItem{OrderID: orderID, Items: []domain.WorkItemLine{
		{ProductVariantID: 951, Quantity: 6},
	}}
	if got := env.svc.Process(ctx, item); got != service.Ack {
		t.Fatalf("expected Ack, got %v", got)
	}

	// Largest stock first: the 5-unit warehouse is drained, the rest comes
	// from the 3-unit one.
	if got := env.stock(t, 9502); got != 0 {
		t.Errorf("expected record 9502 drained, got %d", got)
	}
	if got := env.stock(t, 9501); got != 2 {
		t.Errorf("expected record 9501 at 2, got %d", got)
	}

	order, err := env.orders.GetOrder(ctx, orderID)
	if err != nil || order == nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Status != domain.OrderStatusPending {
		t.Errorf("settled order must stay PENDING, got %s", order.Status)
	}

	// Redelivery of the same item must not deduct again.
	if got := env.svc.Process(ctx, item); got != service.Ack {
		t.Fatalf("expected Ack on redelivery, got %v", got)
	}
	if got := env.stock(t, 9501); got != 2 {
		t.Errorf("redelivery must be a no-op, got %d", got)
	}
}

func TestSettlement_ShortageConservesStock(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()
	ctx := context.Background()

	env.seedRecord(t, 9511, 952, 1, 4)
	env.seedRecord(t, 9512, 953, 1, 2)

	orderID := env.placeOrder(t,
		domain.OrderLine{ProductVariantID: 952, Quantity: 4},
		domain.OrderLine{ProductVariantID: 953, Quantity: 5},
	)
	defer env.deleteOrder(orderID)

	item := domain.WorkItem{OrderID: orderID, Items: []domain.WorkItemLine{
		{ProductVariantID: 952, Quantity: 4},
		{ProductVariantID: 953, Quantity: 5},
	}}
	if got := env.svc.Process(ctx, item); got != service.Ack {
		t.Fatalf("expected Ack, got %v", got)
	}

	if got := env.stock(t, 9511); got != 4 {
		t.Errorf("first line's deduction must be rolled back, got %d", got)
	}
	if got := env.stock(t, 9512); got != 2 {
		t.Errorf("short line must leave stock untouched, got %d", got)
	}

	order, err := env.orders.GetOrder(ctx, orderID)
	if err != nil || order == nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled {
		t.Errorf("expected CANCELLED, got %s", order.Status)
	}

	// The shortage-cancelled order is invisible to the sweeper.
	ids, err := env.orders.CancelledNeedingRestore(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("restore candidates: %v", err)
	}
	for _, id := range ids {
		if id == orderID {
			t.Error("shortage-cancelled order must carry a restore marker already")
		}
	}
}

func TestSweeper_RestoresAdminCancelledOrder(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()
	ctx := context.Background()

	env.seedRecord(t, 9521, 954, 1, 5)

	orderID := env.placeOrder(t, domain.OrderLine{ProductVariantID: 954, Quantity: 5})
	defer env.deleteOrder(orderID)

	item := domain.WorkItem{OrderID: orderID, Items: []domain.WorkItemLine{
		{ProductVariantID: 954, Quantity: 5},
	}}
	if got := env.svc.Process(ctx, item); got != service.Ack {
		t.Fatalf("expected Ack, got %v", got)
	}
	if got := env.stock(t, 9521); got != 0 {
		t.Fatalf("expected stock drained, got %d", got)
	}

	// Admin cancels the settled order; nothing restores stock yet.
	if _, err := env.orders.TransitionStatus(ctx, orderID, domain.OrderStatusCancelled, "cancelled by operator"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	sweeper := service.NewSweeper(env.orders, env.comp, time.Hour, 24*time.Hour)
	processed, _, failed := sweeper.RunOnce(ctx)
	if failed != 0 {
		t.Fatalf("sweep failed for %d orders", failed)
	}
	if processed < 1 {
		t.Fatal("expected the sweep to restore at least this order")
	}
	if got := env.stock(t, 9521); got != 5 {
		t.Errorf("expected stock restored to 5, got %d", got)
	}

	// Sweeping again must not double-credit.
	sweeper.RunOnce(ctx)
	if got := env.stock(t, 9521); got != 5 {
		t.Errorf("second sweep must be a no-op, got %d", got)
	}
}
