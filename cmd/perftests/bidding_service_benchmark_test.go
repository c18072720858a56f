package perftests

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"auction-engine/internal/accounts"
	bidding "auction-engine/internal/biddingService"
	model "auction-engine/internal/models"
	"auction-engine/internal/notification"
	"auction-engine/internal/repository"

	"github.com/shopspring/decimal"
)

// discardQueue drops every notification so benchmarks measure the ledger only
type discardQueue struct{}

func (discardQueue) Enqueue(context.Context, notification.Request) {}

func newBenchService(repo *repository.MemoryRepo) *bidding.BiddingService {
	return bidding.NewBiddingService(repo, accounts.NewAuthorizer(repo), discardQueue{})
}

func benchAuction(id string, startPrice int64) model.Product {
	price := decimal.NewFromInt(startPrice)
	return model.Product{
		ID:           id,
		Title:        "Benchmark item " + id,
		SaleType:     model.SaleTypeAuction,
		Status:       model.StatusActive,
		StartPrice:   price,
		CurrentPrice: price,
		EndTime:      time.Now().Add(24 * time.Hour),
		SellerID:     "seller",
	}
}

func caller(userID string) model.Caller { return model.Caller{UserID: userID} }

// Benchmark 1: PlaceBid - Isolated Products (Low Contention - Micro Benchmark)
func Benchmark_PlaceBid_Isolated(b *testing.B) {
	repo := repository.NewMemoryRepo()
	svc := newBenchService(repo)
	ctx := context.Background()

	for i := 0; i < b.N; i++ {
		repo.AddProduct(benchAuction(fmt.Sprintf("item_%d", i), 50))
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		amount := decimal.NewFromInt(int64(51 + rand.IntN(100)))
		if _, err := svc.PlaceBid(ctx, caller(fmt.Sprintf("user_%d", i)), fmt.Sprintf("item_%d", i), amount); err != nil {
			b.Fatalf("failed to place bid: %v", err)
		}
	}
}

// Benchmark 2: PlaceBid - Shared Product (High Contention - Concurrency Benchmark)
func Benchmark_PlaceBid_ConcurrentSharedItem(b *testing.B) {
	repo := repository.NewMemoryRepo(repository.WithMaxAttempts(20))
	svc := newBenchService(repo)
	ctx := context.Background()

	repo.AddProduct(benchAuction("shared_item_1", 50))

	b.ReportAllocs()
	b.ResetTimer()

	var lastBid int64 = 50
	var conflicts int64

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			userID := fmt.Sprintf("user_parallel_%d", rand.Int())
			nextBid := atomic.AddInt64(&lastBid, int64(rand.IntN(5)+1))
			// a slower writer may commit after a higher bid and be rejected
			if _, err := svc.PlaceBid(ctx, caller(userID), "shared_item_1", decimal.NewFromInt(nextBid)); err != nil {
				atomic.AddInt64(&conflicts, 1)
			}
		}
	})

	b.ReportMetric(float64(conflicts)/float64(b.N), "rejected/op")
}

// Benchmark 3: GetWinningBid - Single - Threaded (Low Contention)
func Benchmark_GetWinningBid_SingleThreaded(b *testing.B) {
	repo := repository.NewMemoryRepo()
	svc := newBenchService(repo)
	ctx := context.Background()

	for i := 0; i < b.N; i++ {
		productID := fmt.Sprintf("item_%d", i)
		repo.AddProduct(benchAuction(productID, 50))
		for j := 1; j <= 10; j++ {
			_, _ = svc.PlaceBid(ctx, caller(fmt.Sprintf("user_%d_%d", i, j)), productID, decimal.NewFromInt(int64(50+j*10)))
		}
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := svc.GetWinningBid(ctx, fmt.Sprintf("item_%d", i)); err != nil {
			b.Fatalf("failed to get winning bid: %v", err)
		}
	}
}

// Benchmark 4: GetBids - Concurrent readers on one ledger
func Benchmark_GetBids_ConcurrentSharedItem(b *testing.B) {
	repo := repository.NewMemoryRepo()
	svc := newBenchService(repo)
	ctx := context.Background()

	repo.AddProduct(benchAuction("shared_item_1", 50))
	for j := 1; j <= 100; j++ {
		_, _ = svc.PlaceBid(ctx, caller(fmt.Sprintf("user_%d", j)), "shared_item_1", decimal.NewFromInt(int64(50+j)))
	}

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := svc.GetBids(ctx, "shared_item_1"); err != nil {
				b.Errorf("failed to get bids: %v", err)
				return
			}
		}
	})
}

// Benchmark 5: Mixed Workload (Readers + Writers concurrently)
func Benchmark_MixedWorkload_SharedItem(b *testing.B) {
	repo := repository.NewMemoryRepo(repository.WithMaxAttempts(20))
	svc := newBenchService(repo)
	ctx := context.Background()

	repo.AddProduct(benchAuction("shared_item_1", 50))
	for j := 1; j <= 50; j++ {
		_, _ = svc.PlaceBid(ctx, caller(fmt.Sprintf("user_seed_%d", j)), "shared_item_1", decimal.NewFromInt(int64(50+j*2)))
	}

	b.ReportAllocs()
	b.ResetTimer()

	var lastBid int64 = 150

	// Ratio: 70% readers, 30% writers
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if rand.IntN(10) < 3 {
				userID := fmt.Sprintf("user_writer_%d", rand.Int())
				nextBid := atomic.AddInt64(&lastBid, int64(rand.IntN(5)+1))
				_, _ = svc.PlaceBid(ctx, caller(userID), "shared_item_1", decimal.NewFromInt(nextBid))
				continue
			}
			_, _ = svc.GetWinningBid(ctx, "shared_item_1")
		}
	})
}

// Benchmark 6: CloseAuctions over a catalogue where every auction has expired
func Benchmark_CloseAuctions(b *testing.B) {
	ctx := context.Background()

	for i := 0; i < b.N; i++ {
		b.StopTimer()
		repo := repository.NewMemoryRepo()
		svc := newBenchService(repo)
		for j := 0; j < 200; j++ {
			p := benchAuction(fmt.Sprintf("item_%d", j), 10)
			p.EndTime = time.Now().Add(-time.Minute)
			p.HighestBidderID = "winner"
			repo.AddProduct(p)
		}
		b.StartTimer()

		report, err := svc.CloseAuctions(ctx)
		if err != nil {
			b.Fatalf("sweep failed: %v", err)
		}
		if report.Closed != 200 {
			b.Fatalf("closed %d auctions, want 200", report.Closed)
		}
	}
}
