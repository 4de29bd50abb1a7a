package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/stock-settlement/internal/core/domain"
	"github.com/rl1809/stock-settlement/internal/port"
)

// In-memory fakes for the ports, with transactional rollback semantics that
// mirror the MySQL adapters closely enough for the worker state machine to
// be exercised without a database.

type fakeLedger struct {
	mu        sync.Mutex
	records   map[int64]*domain.InventoryRecord
	lineMarks map[string]int
	restores  map[int64]bool

	// raceFailures forces ConditionalDecrement to report a lost race the
	// given number of times per record before behaving normally.
	raceFailures map[int64]int

	txErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		records:      map[int64]*domain.InventoryRecord{},
		lineMarks:    map[string]int{},
		restores:     map[int64]bool{},
		raceFailures: map[int64]int{},
	}
}

func (l *fakeLedger) addRecord(id, variantID, warehouseID int64, stock int, active bool) {
	l.records[id] = &domain.InventoryRecord{
		ID:               id,
		ProductVariantID: variantID,
		WarehouseID:      warehouseID,
		StockQuantity:    stock,
		WarehouseActive:  active,
	}
}

func (l *fakeLedger) stock(recordID int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.records[recordID].StockQuantity
}

func (l *fakeLedger) totalStock() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, rec := range l.records {
		total += rec.StockQuantity
	}
	return total
}

func markKey(orderID, variantID int64) string {
	return fmt.Sprintf("%d:%d", orderID, variantID)
}

func (l *fakeLedger) InTx(ctx context.Context, fn func(tx port.LedgerTx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.txErr != nil {
		return l.txErr
	}

	// Snapshot for rollback.
	records := map[int64]*domain.InventoryRecord{}
	for id, rec := range l.records {
		copied := *rec
		records[id] = &copied
	}
	marks := map[string]int{}
	for k, v := range l.lineMarks {
		marks[k] = v
	}

	if err := fn(&fakeLedgerTx{ledger: l}); err != nil {
		l.records = records
		l.lineMarks = marks
		return err
	}
	return nil
}

func (l *fakeLedger) RestoreForOrder(ctx context.Context, orderID, warehouseID int64) (map[int64]int, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.txErr != nil {
		return nil, false, l.txErr
	}
	if l.restores[orderID] {
		return nil, true, nil
	}

	settled := map[int64]int{}
	for key, qty := range l.lineMarks {
		var oid, vid int64
		fmt.Sscanf(key, "%d:%d", &oid, &vid)
		if oid == orderID {
			settled[vid] += qty
		}
	}

	for variantID, qty := range settled {
		target := l.findRecord(variantID, warehouseID)
		if target == nil {
			return nil, false, fmt.Errorf("credit variant %d: %w", variantID, domain.ErrNotFound)
		}
		target.StockQuantity += qty
	}

	l.restores[orderID] = true
	return settled, false, nil
}

func (l *fakeLedger) findRecord(variantID, warehouseID int64) *domain.InventoryRecord {
	for _, rec := range l.records {
		if rec.ProductVariantID == variantID && rec.WarehouseID == warehouseID {
			return rec
		}
	}
	var fallback *domain.InventoryRecord
	for _, rec := range l.records {
		if rec.ProductVariantID == variantID && rec.WarehouseActive {
			if fallback == nil || rec.ID < fallback.ID {
				fallback = rec
			}
		}
	}
	return fallback
}

type fakeLedgerTx struct {
	ledger *fakeLedger
}

func (t *fakeLedgerTx) LockForUpdate(ctx context.Context, variantID int64) ([]domain.InventoryRecord, error) {
	var records []domain.InventoryRecord
	for _, rec := range t.ledger.records {
		if rec.ProductVariantID == variantID && rec.WarehouseActive {
			records = append(records, *rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].StockQuantity != records[j].StockQuantity {
			return records[i].StockQuantity > records[j].StockQuantity
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

func (t *fakeLedgerTx) ConditionalDecrement(ctx context.Context, recordID int64, amount int) (bool, error) {
	if t.ledger.raceFailures[recordID] > 0 {
		t.ledger.raceFailures[recordID]--
		return false, nil
	}
	rec, ok := t.ledger.records[recordID]
	if !ok {
		return false, fmt.Errorf("record %d: %w", recordID, domain.ErrNotFound)
	}
	if rec.StockQuantity < amount {
		return false, nil
	}
	rec.StockQuantity -= amount
	return true, nil
}

func (t *fakeLedgerTx) Increment(ctx context.Context, recordID int64, amount int) error {
	rec, ok := t.ledger.records[recordID]
	if !ok {
		return fmt.Errorf("record %d: %w", recordID, domain.ErrNotFound)
	}
	rec.StockQuantity += amount
	return nil
}

func (t *fakeLedgerTx) LineSettled(ctx context.Context, orderID, variantID int64) (bool, error) {
	_, ok := t.ledger.lineMarks[markKey(orderID, variantID)]
	return ok, nil
}

func (t *fakeLedgerTx) MarkLineSettled(ctx context.Context, orderID, variantID int64, quantity int) error {
	t.ledger.lineMarks[markKey(orderID, variantID)] = quantity
	return nil
}

func (t *fakeLedgerTx) UnmarkLineSettled(ctx context.Context, orderID, variantID int64) error {
	delete(t.ledger.lineMarks, markKey(orderID, variantID))
	return nil
}

type fakeOrderStore struct {
	mu      sync.Mutex
	nextID  int64
	orders  map[int64]*domain.Order
	lines   map[int64][]domain.OrderLine
	history map[int64][]domain.StatusHistoryEntry

	// ledger lets CancelledNeedingRestore consult the restore markers the
	// way the SQL query joins stock_restores.
	ledger *fakeLedger

	transitionErr error
}

func newFakeOrderStore(ledger *fakeLedger) *fakeOrderStore {
	return &fakeOrderStore{
		nextID:  1,
		orders:  map[int64]*domain.Order{},
		lines:   map[int64][]domain.OrderLine{},
		history: map[int64][]domain.StatusHistoryEntry{},
		ledger:  ledger,
	}
}

func (s *fakeOrderStore) addOrder(id int64, status domain.OrderStatus, placedAt time.Time, lines ...domain.OrderLine) {
	s.orders[id] = &domain.Order{ID: id, Status: status, PlacedAt: placedAt}
	s.lines[id] = lines
}

func (s *fakeOrderStore) statusOf(id int64) domain.OrderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id].Status
}

func (s *fakeOrderStore) historyCount(id int64, status domain.OrderStatus) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, entry := range s.history[id] {
		if entry.Status == status {
			count++
		}
	}
	return count
}

func (s *fakeOrderStore) CreateOrder(ctx context.Context, order domain.Order, lines []domain.OrderLine) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	order.ID = id
	s.orders[id] = &order
	for i := range lines {
		lines[i].OrderID = id
	}
	s.lines[id] = lines
	s.history[id] = append(s.history[id], domain.StatusHistoryEntry{
		OrderID: id, Status: order.Status, Description: "order placed", CreatedAt: time.Now(),
	})
	return id, nil
}

func (s *fakeOrderStore) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, nil
	}
	copied := *order
	return &copied, nil
}

func (s *fakeOrderStore) Lines(ctx context.Context, orderID int64) ([]domain.OrderLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines[orderID], nil
}

func (s *fakeOrderStore) History(ctx context.Context, orderID int64) ([]domain.StatusHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history[orderID], nil
}

func (s *fakeOrderStore) TransitionStatus(ctx context.Context, orderID int64, to domain.OrderStatus, description string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transitionErr != nil {
		return false, s.transitionErr
	}
	order, ok := s.orders[orderID]
	if !ok {
		return false, fmt.Errorf("order %d: %w", orderID, domain.ErrNotFound)
	}
	if order.Status.Terminal() {
		return false, nil
	}
	order.Status = to
	s.history[orderID] = append(s.history[orderID], domain.StatusHistoryEntry{
		OrderID: orderID, Status: to, Description: description, CreatedAt: time.Now(),
	})
	return true, nil
}

func (s *fakeOrderStore) AppendHistory(ctx context.Context, orderID int64, status domain.OrderStatus, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[orderID] = append(s.history[orderID], domain.StatusHistoryEntry{
		OrderID: orderID, Status: status, Description: description, CreatedAt: time.Now(),
	})
	return nil
}

func (s *fakeOrderStore) CancelledNeedingRestore(ctx context.Context, window time.Duration) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, order := range s.orders {
		if order.Status != domain.OrderStatusCancelled {
			continue
		}
		if len(s.lines[id]) == 0 {
			continue
		}
		if s.ledger.restores[id] {
			continue
		}
		if window > 0 && order.PlacedAt.Before(time.Now().Add(-window)) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

type fakeGuard struct {
	busy     bool
	acquired int
	released int
}

func (g *fakeGuard) Acquire(ctx context.Context, orderID int64) (bool, error) {
	if g.busy {
		return false, nil
	}
	g.acquired++
	return true, nil
}

func (g *fakeGuard) Release(ctx context.Context, orderID int64) error {
	g.released++
	return nil
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []domain.NotificationEvent
	err    error
}

func (e *fakeEmitter) Emit(ctx context.Context, event domain.NotificationEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.events = append(e.events, event)
	return nil
}

type fakeEnqueuer struct {
	items []domain.WorkItem
	err   error
}

func (q *fakeEnqueuer) Enqueue(ctx context.Context, item domain.WorkItem) error {
	if q.err != nil {
		return q.err
	}
	q.items = append(q.items, item)
	return nil
}

var errStorageDown = errors.New("storage unavailable")

type fixture struct {
	ledger  *fakeLedger
	orders  *fakeOrderStore
	guard   *fakeGuard
	emitter *fakeEmitter
	comp    *CompensationService
	svc     *SettlementService
}

func newFixture(restoreWarehouseID int64) *fixture {
	ledger := newFakeLedger()
	orders := newFakeOrderStore(ledger)
	guard := &fakeGuard{}
	emitter := &fakeEmitter{}
	comp := NewCompensationService(orders, ledger, restoreWarehouseID)
	return &fixture{
		ledger:  ledger,
		orders:  orders,
		guard:   guard,
		emitter: emitter,
		comp:    comp,
		svc:     NewSettlementService(ledger, orders, comp, guard, emitter),
	}
}
