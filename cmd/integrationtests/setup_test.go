package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"auction-engine/internal/accounts"
	"auction-engine/internal/bg"
	bidding "auction-engine/internal/biddingService"
	model "auction-engine/internal/models"
	"auction-engine/internal/notification"
	"auction-engine/internal/repository"
	"auction-engine/internal/server"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// testNow is where every environment clock starts
var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// fakeClock is a settable clock shared by the service under test
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sentMessage is one multicast seen by recordingSender
type sentMessage struct {
	Tokens  []string
	Message notification.Message
}

// recordingSender records every multicast and fails the tokens listed in unregistered
type recordingSender struct {
	mu           sync.Mutex
	sent         []sentMessage
	unregistered map[string]bool
}

func (s *recordingSender) SendMulticast(_ context.Context, tokens []string, msg notification.Message) ([]notification.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{Tokens: append([]string(nil), tokens...), Message: msg})

	results := make([]notification.SendResult, len(tokens))
	for i, tok := range tokens {
		results[i] = notification.SendResult{Token: tok}
		if s.unregistered[tok] {
			results[i].Err = notification.ErrTokenUnregistered
		}
	}
	return results, nil
}

func (s *recordingSender) Sent() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

// testEnv is a full engine on an in-memory store with synchronous notifications
type testEnv struct {
	Repo    *repository.MemoryRepo
	Router  *gin.Engine
	Service *bidding.BiddingService
	Clock   *fakeClock
	Push    *recordingSender
}

// SetupTestEnv initializes the router with in-memory repository for integration testing.
func SetupTestEnv(products ...model.Product) *testEnv {
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryRepo()
	for _, p := range products {
		repo.AddProduct(p)
	}
	repo.AddAdmin("admin")

	clock := &fakeClock{now: testNow}
	push := &recordingSender{unregistered: map[string]bool{}}
	queue := notification.NewInlineQueue(notification.NewDispatcher(repo, push), bg.Sync{}, time.Second)

	authorizer := accounts.NewAuthorizer(repo)
	svc := bidding.NewBiddingService(repo, authorizer, queue, bidding.WithClock(clock.Now))
	router := server.SetupRouter(svc, accounts.NewService(authorizer, repo))

	return &testEnv{Repo: repo, Router: router, Service: svc, Clock: clock, Push: push}
}

// newAuction builds an active auction closing an hour after testNow
func newAuction(id string, startPrice int64) model.Product {
	return model.Product{
		ID:           id,
		Title:        "title " + id,
		SaleType:     model.SaleTypeAuction,
		Status:       model.StatusActive,
		StartPrice:   decimal.NewFromInt(startPrice),
		CurrentPrice: decimal.NewFromInt(startPrice),
		BidderIDs:    []string{},
		EndTime:      testNow.Add(time.Hour),
		SellerID:     "seller",
		CreatedAt:    testNow.Add(-time.Hour),
	}
}

// newDirectSale builds an active fixed-price listing
func newDirectSale(id string, price int64) model.Product {
	p := newAuction(id, price)
	p.SaleType = model.SaleTypeDirectSale
	p.EndTime = time.Time{}
	return p
}

// ExecuteRequestAndParse executes an HTTP request as userID and parses the response envelope
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url, userID string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(server.HeaderUserID, userID)
	}
	router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}

	return resp, w
}
