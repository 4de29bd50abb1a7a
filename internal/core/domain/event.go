package domain

// Event types emitted to the external notification collaborator. Delivery
// and persistence of notifications happen outside the engine.
const (
	EventOrderOutOfStock = "ORDER_CANCELLED_OUT_OF_STOCK"
)

type NotificationEvent struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Message    string `json:"message"`
	Link       string `json:"link"`
	CustomerID *int64 `json:"customer_id"`
}
