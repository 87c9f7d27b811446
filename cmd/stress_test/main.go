package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rl1809/import-export/internal/adapter/events"
	"github.com/rl1809/import-export/internal/adapter/storage"
	"github.com/rl1809/import-export/internal/config"
	"github.com/rl1809/import-export/internal/core/domain"
	"github.com/rl1809/import-export/internal/core/service"
	"github.com/rl1809/import-export/internal/port"
)

const (
	initialStock  = 20
	totalRequests = 50
)

func main() {
	ctx := context.Background()

	// STORE_DRIVER=mysql runs against MYSQL_DSN; the default is in-memory.
	repo, cleanup := openStore(ctx)
	defer cleanup()

	catalog := service.NewCatalogService(repo, events.Nop{}, nil)
	transfers := service.NewTransferService(repo, nil, events.Nop{}, nil, false)

	product, err := catalog.Create(ctx, map[string]any{
		"name":          "stress-test-item",
		"image":         "https://example.com/stress.png",
		"price":         9.99,
		"originCountry": "VN",
		"rating":        4.5,
		"quantity":      initialStock,
		"ownerId":       "stress-owner",
	})
	if err != nil {
		log.Fatalf("failed to create product: %v", err)
	}

	// Counters
	var successCount, rejectedCount, errorCount atomic.Int32

	// Spawn concurrent imports
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()

			_, err := transfers.Transfer(ctx, "", fmt.Sprintf("user-%d", userID), product.ID, 1)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				rejectedCount.Add(1)
			default:
				errorCount.Add(1)
				log.Printf("user-%d: %v", userID, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	rejected := rejectedCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Quantity: %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Rejected:         %d\n", rejected)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	failed := false
	if success == initialStock && rejected == totalRequests-initialStock {
		fmt.Printf("PASS: Exactly %d imports succeeded, %d rejected\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d rejected, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, rejected)
		failed = true
	}

	// Verify the ledger balances against the remaining quantity
	current, err := catalog.GetByID(ctx, product.ID)
	if err != nil {
		log.Fatalf("failed to reload product: %v", err)
	}
	drawn := 0
	for _, t := range current.Transfers {
		drawn += t.Quantity
	}
	fmt.Printf("Final Quantity:   %d\n", current.Quantity)
	fmt.Printf("Ledger Total:     %d\n", drawn)

	if current.Quantity == 0 && current.Quantity+drawn == initialStock {
		fmt.Println("PASS: Quantity depleted to 0 and ledger balances")
	} else {
		fmt.Printf("FAIL: quantity %d + ledger %d != %d\n", current.Quantity, drawn, initialStock)
		failed = true
	}

	if _, err := catalog.Remove(ctx, product.ID); err != nil {
		log.Printf("cleanup failed: %v", err)
	}
	if failed {
		cleanup()
		os.Exit(1)
	}
}

func openStore(ctx context.Context) (port.CatalogRepository, func()) {
	if config.GetEnv("STORE_DRIVER", config.StoreMemory) != config.StoreMySQL {
		return storage.NewMemoryAdapter(), func() {}
	}

	dsn := config.GetEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/importexport?parseTime=true")
	db, err := storage.OpenMySQL(ctx, dsn, storage.PoolConfig{MaxOpenConns: 50, MaxIdleConns: 25})
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	if err := storage.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("failed to ensure schema: %v", err)
	}
	return storage.NewMySQLAdapter(db), func() { db.Close() }
}
