package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Fires concurrent orders at the intake API and reports how many were
// accepted. With the settlement consumers running against a seeded variant,
// the accepted orders race for the same stock and the surplus ends up
// CANCELLED with a shortage reason in its history.
func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base url")
	variantID := flag.Int64("variant", 1, "product variant id to order")
	quantity := flag.Int("quantity", 1, "quantity per order")
	totalOrders := flag.Int("orders", 50, "number of concurrent orders")
	flag.Parse()

	type lineReq struct {
		VariantID int64 `json:"variant_id"`
		Quantity  int   `json:"quantity"`
	}
	type orderReq struct {
		CustomerID *int64    `json:"customer_id"`
		Items      []lineReq `json:"items"`
	}

	var accepted, rejected atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalOrders; i++ {
		wg.Add(1)
		go func(customer int64) {
			defer wg.Done()

			body, _ := json.Marshal(orderReq{
				CustomerID: &customer,
				Items:      []lineReq{{VariantID: *variantID, Quantity: *quantity}},
			})
			resp, err := http.Post(*baseURL+"/api/orders", "application/json", bytes.NewReader(body))
			if err != nil {
				rejected.Add(1)
				return
			}
			resp.Body.Close()
			if resp.StatusCode == http.StatusAccepted {
				accepted.Add(1)
			} else {
				rejected.Add(1)
			}
		}(int64(i + 1))
	}

	wg.Wait()
	elapsed := time.Since(start)

	fmt.Println("========== LOAD GENERATOR RESULTS ==========")
	fmt.Printf("Total Orders:   %d\n", *totalOrders)
	fmt.Printf("Accepted:       %d\n", accepted.Load())
	fmt.Printf("Rejected:       %d\n", rejected.Load())
	fmt.Printf("Duration:       %v\n", elapsed)
	fmt.Println("============================================")
	fmt.Println("settlement outcomes are asynchronous: check order status via GET /api/orders/{id}")
}
