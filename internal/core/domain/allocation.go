package domain

// AllocationStep deducts Amount units from the inventory record RecordID.
type AllocationStep struct {
	RecordID int64
	Amount   int
}

// AllocationPlan is the ordered set of deductions that together satisfy one
// order line.
type AllocationPlan []AllocationStep

// Total is the number of units the plan deducts.
func (p AllocationPlan) Total() int {
	total := 0
	for _, step := range p {
		total += step.Amount
	}
	return total
}

// Allocate splits a requested quantity across inventory records, walking the
// records in the order given (callers pass them sorted by stock descending so
// a single warehouse satisfies the line whenever possible) and greedily
// taking min(remaining, stock) from each. The returned shortfall is whatever
// could not be allocated; zero means the line is fully satisfiable.
//
// Allocate performs no I/O. The caller executes the plan against the ledger
// and recomputes it from a fresh locked read if the snapshot changed in
// between.
func Allocate(records []InventoryRecord, requested int) (AllocationPlan, int) {
	remaining := requested
	var plan AllocationPlan

	for _, rec := range records {
		if remaining == 0 {
			break
		}
		if rec.StockQuantity <= 0 {
			continue
		}
		take := rec.StockQuantity
		if remaining < take {
			take = remaining
		}
		plan = append(plan, AllocationStep{RecordID: rec.ID, Amount: take})
		remaining -= take
	}

	return plan, remaining
}
