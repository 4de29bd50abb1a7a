package domain

// InventoryRecord is one row of stock-on-hand for a product variant in a
// single warehouse. StockQuantity never goes negative; all mutation happens
// through the ledger's conditional decrement / increment primitives.
type InventoryRecord struct {
	ID               int64
	ProductVariantID int64
	WarehouseID      int64
	StockQuantity    int
	WarehouseActive  bool
}
