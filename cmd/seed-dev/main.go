// seed-dev creates a head-office session plus one outlet, one customer
// and an outlet session so the API is usable on a fresh database.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... REDIS_ADDRESS=... go run ./cmd/seed-dev
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gasbygas/dispatch_backend/config"
	"github.com/gasbygas/dispatch_backend/models"
	"github.com/gasbygas/dispatch_backend/utils"
)

const (
	headOfficeToken = "dev-headoffice-token"
	outletToken     = "dev-outlet-token"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	outlet, err := models.GetOutletByName(ctx, "Colombo Central")
	if err != nil {
		outlet, err = models.CreateOutlet(ctx, &models.NewOutlet{
			Name:            "Colombo Central",
			Location:        "Colombo 07",
			Mobile:          "0771234567",
			OpeningQuantity: 100,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create outlet: %v\n", err)
			os.Exit(1)
		}
	}

	customer, err := models.CreateCustomer(ctx, &models.NewCustomer{
		Name:     "Dev Customer",
		OutletId: outlet.ID,
		Email:    "dev.customer@example.com",
		Mobile:   "0777654321",
	})
	if err != nil && !utils.IsValidationError(err) {
		fmt.Fprintf(os.Stderr, "failed to create customer: %v\n", err)
		os.Exit(1)
	}

	depot, err := models.GetStockByOutlet(ctx, models.HeadOfficeOutletId)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read depot stock: %v\n", err)
		os.Exit(1)
	}
	if depot.Quantity == 0 {
		if _, err := models.CreditHeadOfficeStock(ctx, 1000); err != nil {
			fmt.Fprintf(os.Stderr, "failed to credit depot stock: %v\n", err)
			os.Exit(1)
		}
	}

	sessions := map[string]map[string]interface{}{
		headOfficeToken: {"outlet_id": 0, "role": utils.RoleHeadOffice, "name": "Dev Head Office"},
		outletToken:     {"outlet_id": outlet.ID, "role": utils.RoleOutlet, "name": "Dev Outlet Clerk"},
	}
	for token, session := range sessions {
		raw, _ := json.Marshal(session)
		if err := config.SetRedisValue("Session:"+token, string(raw), 30*24*time.Hour); err != nil {
			fmt.Fprintf(os.Stderr, "failed to store session: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("outlet id=%d\n", outlet.ID)
	if customer != nil {
		fmt.Printf("customer id=%d\n", customer.ID)
	}
	fmt.Printf("head office token: %s\noutlet token: %s\n", headOfficeToken, outletToken)
}
