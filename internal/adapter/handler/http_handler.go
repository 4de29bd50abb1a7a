package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rl1809/stock-settlement/internal/core/domain"
	"github.com/rl1809/stock-settlement/internal/core/service"
)

type HTTPHandler struct {
	intake *service.IntakeService
}

type orderLineRequest struct {
	VariantID int64 `json:"variant_id"`
	Quantity  int   `json:"quantity"`
}

type placeOrderRequest struct {
	CustomerID *int64             `json:"customer_id"`
	Items      []orderLineRequest `json:"items"`
}

type placeOrderResponse struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type historyEntryResponse struct {
	Status      string    `json:"status"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

type orderResponse struct {
	OrderID int64                  `json:"order_id"`
	Status  string                 `json:"status"`
	History []historyEntryResponse `json:"history"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func NewHTTPHandler(intake *service.IntakeService) *HTTPHandler {
	return &HTTPHandler{intake: intake}
}

func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders", h.PlaceOrder)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	mux.HandleFunc("POST /api/orders/{id}/cancel", h.CancelOrder)
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())
}

func (h *HTTPHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}

	items := make([]domain.WorkItemLine, len(req.Items))
	for i, line := range req.Items {
		items[i] = domain.WorkItemLine{ProductVariantID: line.VariantID, Quantity: line.Quantity}
	}

	orderID, err := h.intake.PlaceOrder(r.Context(), req.CustomerID, items)
	if err != nil {
		if errors.Is(err, service.ErrInvalidOrder) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal error"})
		return
	}

	writeJSON(w, http.StatusAccepted, placeOrderResponse{
		OrderID: orderID,
		Status:  string(domain.OrderStatusPending),
	})
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r)
	if !ok {
		return
	}

	order, history, err := h.intake.OrderStatus(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Message: "order not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal error"})
		return
	}

	resp := orderResponse{OrderID: order.ID, Status: string(order.Status)}
	for _, entry := range history {
		resp.History = append(resp.History, historyEntryResponse{
			Status:      string(entry.Status),
			Description: entry.Description,
			Timestamp:   entry.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if r.Body != nil {
		// Reason is optional; an empty body is fine.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	transitioned, err := h.intake.CancelOrder(r.Context(), orderID, req.Reason)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Message: "order not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal error"})
		return
	}
	if !transitioned {
		writeJSON(w, http.StatusConflict, errorResponse{Message: "order already in a terminal state"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.OrderStatusCancelled)})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid order id"})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
