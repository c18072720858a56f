package repository

//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
)

// DefaultMaxAttempts bounds how many times a conflicting transaction body is re-run
const DefaultMaxAttempts = 5

// Tx is the view of the store available inside a transaction body.
//
// Every ledger mutation is guarded by the owning product's version: a body that
// reads a product and later writes it commits only if no other transaction
// committed a write to that product in between.
type Tx interface {
	GetProduct(productID string) (model.Product, error)
	UpdateProduct(product model.Product) error
	AddBid(bid model.Bid) error
	DeleteBid(productID, bidID string) error
	BidsByAmountDesc(productID string) ([]model.Bid, error)
	CloseConversation(closure model.ConversationClosure) error
}

// AuctionDB defines the product and bid storage interface for the auction engine
type AuctionDB interface {
	// RunTransaction runs fn with optimistic concurrency. On a write conflict the
	// body is re-run transparently; errors returned by fn abort without writes.
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error
	CreateProduct(ctx context.Context, product model.Product) error
	GetProduct(ctx context.Context, productID string) (model.Product, error)
	GetBidsByProduct(ctx context.Context, productID string) ([]model.Bid, error)
	GetProductsByBidder(ctx context.Context, userID string) ([]model.Product, error)
	FindExpiredAuctions(ctx context.Context, now time.Time) ([]model.Product, error)
}

// Directory is the user-account collaborator: admin membership, account
// standing, the banned phone list and incident reports.
type Directory interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
	GetUser(ctx context.Context, userID string) (model.User, error)
	// ListUsers returns at most limit users ordered by id
	ListUsers(ctx context.Context, limit int) ([]model.User, error)
	SetUserStatus(ctx context.Context, userID string, status model.UserStatus) error
	BanPhone(ctx context.Context, phone, bannedUserID, reason string, at time.Time) error
	IsPhoneBanned(ctx context.Context, phone string) (bool, error)
	SaveIncident(ctx context.Context, incident model.Incident) error
}

// TokenStore lists and prunes push-delivery tokens per user
type TokenStore interface {
	DeviceTokens(ctx context.Context, userID string) ([]string, error)
	DeleteDeviceToken(ctx context.Context, userID, token string) error
}

// LeaseStore grants short-lived named leases used to keep periodic jobs from overlapping
type LeaseStore interface {
	AcquireLease(ctx context.Context, name, owner string, ttl time.Duration, now time.Time) (bool, error)
	ReleaseLease(ctx context.Context, name, owner string) error
}

// retryTransaction re-runs attempt while it fails with ErrConflict, sleeping a
// jittered, doubling backoff between attempts.
func retryTransaction(ctx context.Context, maxAttempts int, attempt func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	backoff := 2 * time.Millisecond

	for i := 1; i <= maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("repository: transaction aborted: %w", err)
		}

		err := attempt()
		if !errors.Is(err, biddingerrors.ErrConflict) {
			return err
		}
		if i == maxAttempts {
			break
		}

		wait := backoff/2 + rand.N(backoff)
		select {
		case <-ctx.Done():
			return fmt.Errorf("repository: transaction aborted: %w", ctx.Err())
		case <-time.After(wait):
		}
		backoff = min(backoff*2, 100*time.Millisecond)
	}

	return fmt.Errorf("repository: gave up after %d attempts: %w", maxAttempts, biddingerrors.ErrTooMuchContention)
}
