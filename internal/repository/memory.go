package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/ledger"
	model "auction-engine/internal/models"
)

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB,
// Directory, TokenStore and LeaseStore.
//
// Transactions are optimistic: reads record the product version they saw and
// writes are buffered until commit, which re-validates every observed version
// under the write lock and fails with ErrConflict if any moved.
type MemoryRepo struct {
	mu          sync.RWMutex
	maxAttempts int

	products      map[string]model.Product      // key: productID
	bids          map[string][]model.Bid        // key: productID -> ledger
	conversations map[string]model.Conversation // key: productID_userID
	users         map[string]model.User
	admins        map[string]bool
	bannedPhones  map[string]string // key: phone -> banned userID
	incidents     []model.Incident
	tokens        map[string][]string // key: userID -> device tokens
	leases        map[string]memoryLease
}

type memoryLease struct {
	owner     string
	expiresAt time.Time
}

// MemoryOption configures a MemoryRepo
type MemoryOption func(*MemoryRepo)

// WithMaxAttempts overrides how often a conflicting transaction is retried
func WithMaxAttempts(n int) MemoryOption {
	return func(r *MemoryRepo) { r.maxAttempts = n }
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo(opts ...MemoryOption) *MemoryRepo {
	r := &MemoryRepo{
		maxAttempts:   DefaultMaxAttempts,
		products:      make(map[string]model.Product),
		bids:          make(map[string][]model.Bid),
		conversations: make(map[string]model.Conversation),
		users:         make(map[string]model.User),
		admins:        make(map[string]bool),
		bannedPhones:  make(map[string]string),
		tokens:        make(map[string][]string),
		leases:        make(map[string]memoryLease),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunTransaction runs fn against a fresh optimistic transaction, retrying on conflict
func (r *MemoryRepo) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	return retryTransaction(ctx, r.maxAttempts, func() error {
		tx := newMemoryTx(r)
		if err := fn(tx); err != nil {
			return err
		}
		return r.commit(tx)
	})
}

func (r *MemoryRepo) commit(tx *memoryTx) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, seen := range tx.readVersions {
		if r.products[id].Version != seen {
			return fmt.Errorf("commit product %s: %w", id, biddingerrors.ErrConflict)
		}
	}

	touched := make(map[string]bool)
	for productID, bidIDs := range tx.deletedBids {
		r.bids[productID] = slices.DeleteFunc(r.bids[productID], func(b model.Bid) bool {
			return bidIDs[b.BidID]
		})
		touched[productID] = true
	}
	for _, b := range tx.addedBids {
		r.bids[b.ProductID] = append(r.bids[b.ProductID], b)
		touched[b.ProductID] = true
	}
	for id, p := range tx.writes {
		p.Version = r.products[id].Version
		r.products[id] = p
		touched[id] = true
	}
	for id := range touched {
		p := r.products[id]
		p.Version++
		r.products[id] = p
	}

	for _, c := range tx.closures {
		conv, ok := r.conversations[c.ConversationID]
		if !ok {
			conv = model.Conversation{
				ConversationID: c.ConversationID,
				ProductID:      c.ProductID,
				Participants:   []string{c.UserID},
			}
		}
		conv.Status = model.ConversationClosed
		conv.LastMessage = c.Message
		conv.LastMessageAt = c.ClosedAt
		conv.LastMessageSenderID = c.SenderID
		r.conversations[c.ConversationID] = conv
	}

	return nil
}

// memoryTx buffers writes until commit and remembers the first version of every product it read
type memoryTx struct {
	repo         *MemoryRepo
	readVersions map[string]uint64
	writes       map[string]model.Product
	addedBids    []model.Bid
	deletedBids  map[string]map[string]bool
	closures     []model.ConversationClosure
}

func newMemoryTx(r *MemoryRepo) *memoryTx {
	return &memoryTx{
		repo:         r,
		readVersions: make(map[string]uint64),
		writes:       make(map[string]model.Product),
		deletedBids:  make(map[string]map[string]bool),
	}
}

// observe must be called with at least the read lock held
func (tx *memoryTx) observe(productID string) (model.Product, bool) {
	p, ok := tx.repo.products[productID]
	if !ok {
		return model.Product{}, false
	}
	if _, seen := tx.readVersions[productID]; !seen {
		tx.readVersions[productID] = p.Version
	}
	return p.Clone(), true
}

func (tx *memoryTx) GetProduct(productID string) (model.Product, error) {
	if p, ok := tx.writes[productID]; ok {
		return p.Clone(), nil
	}

	tx.repo.mu.RLock()
	defer tx.repo.mu.RUnlock()

	p, ok := tx.observe(productID)
	if !ok {
		return model.Product{}, fmt.Errorf("get product %s: %w", productID, biddingerrors.ErrProductNotFound)
	}
	return p, nil
}

func (tx *memoryTx) UpdateProduct(product model.Product) error {
	if _, seen := tx.readVersions[product.ID]; !seen {
		return fmt.Errorf("update product %s: product was not read in this transaction", product.ID)
	}
	tx.writes[product.ID] = product.Clone()
	return nil
}

func (tx *memoryTx) AddBid(bid model.Bid) error {
	if _, err := tx.GetProduct(bid.ProductID); err != nil {
		return fmt.Errorf("add bid %s: %w", bid.BidID, err)
	}
	tx.addedBids = append(tx.addedBids, bid)
	return nil
}

func (tx *memoryTx) DeleteBid(productID, bidID string) error {
	if _, err := tx.GetProduct(productID); err != nil {
		return fmt.Errorf("delete bid %s: %w", bidID, err)
	}
	if tx.deletedBids[productID] == nil {
		tx.deletedBids[productID] = make(map[string]bool)
	}
	tx.deletedBids[productID][bidID] = true
	tx.addedBids = slices.DeleteFunc(tx.addedBids, func(b model.Bid) bool { return b.BidID == bidID })
	return nil
}

// BidsByAmountDesc returns the ledger as this transaction sees it, own writes included
func (tx *memoryTx) BidsByAmountDesc(productID string) ([]model.Bid, error) {
	tx.repo.mu.RLock()
	if _, ok := tx.observe(productID); !ok {
		tx.repo.mu.RUnlock()
		return nil, fmt.Errorf("list bids for product %s: %w", productID, biddingerrors.ErrProductNotFound)
	}
	bids := slices.Clone(tx.repo.bids[productID])
	tx.repo.mu.RUnlock()

	deleted := tx.deletedBids[productID]
	bids = slices.DeleteFunc(bids, func(b model.Bid) bool { return deleted[b.BidID] })
	for _, b := range tx.addedBids {
		if b.ProductID == productID {
			bids = append(bids, b)
		}
	}
	return ledger.SortByAmountDesc(bids), nil
}

func (tx *memoryTx) CloseConversation(closure model.ConversationClosure) error {
	tx.closures = append(tx.closures, closure)
	return nil
}

// CreateProduct stores a new listing
func (r *MemoryRepo) CreateProduct(_ context.Context, product model.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.products[product.ID]; exists {
		return fmt.Errorf("create product %s: already exists", product.ID)
	}
	product = product.Clone()
	product.Version = 1
	r.products[product.ID] = product
	return nil
}

// GetProduct returns a product by id
func (r *MemoryRepo) GetProduct(_ context.Context, productID string) (model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[productID]
	if !ok {
		return model.Product{}, fmt.Errorf("get product %s: %w", productID, biddingerrors.ErrProductNotFound)
	}
	return p.Clone(), nil
}

// GetBidsByProduct returns the ledger of a product ordered by amount descending
func (r *MemoryRepo) GetBidsByProduct(_ context.Context, productID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.products[productID]; !ok {
		return nil, fmt.Errorf("get bids for product %s: %w", productID, biddingerrors.ErrProductNotFound)
	}
	return ledger.SortByAmountDesc(r.bids[productID]), nil
}

// GetProductsByBidder returns every product whose bidder set contains userID
func (r *MemoryRepo) GetProductsByBidder(_ context.Context, userID string) ([]model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Product
	for _, p := range r.products {
		if slices.Contains(p.BidderIDs, userID) {
			out = append(out, p.Clone())
		}
	}
	slices.SortFunc(out, func(a, b model.Product) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

// FindExpiredAuctions returns active auctions whose deadline is at or before now
func (r *MemoryRepo) FindExpiredAuctions(_ context.Context, now time.Time) ([]model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Product
	for _, p := range r.products {
		if p.Status == model.StatusActive && p.Expired(now) {
			out = append(out, p.Clone())
		}
	}
	slices.SortFunc(out, func(a, b model.Product) int { return a.EndTime.Compare(b.EndTime) })
	return out, nil
}

// IsAdmin reports admin membership
func (r *MemoryRepo) IsAdmin(_ context.Context, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.admins[userID], nil
}

// GetUser returns a user record
func (r *MemoryRepo) GetUser(_ context.Context, userID string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[userID]
	if !ok {
		return model.User{}, fmt.Errorf("get user %s: %w", userID, biddingerrors.ErrUserNotFound)
	}
	return u, nil
}

// ListUsers returns at most limit users ordered by id
func (r *MemoryRepo) ListUsers(_ context.Context, limit int) ([]model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b model.User) int { return strings.Compare(a.UserID, b.UserID) })
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

// SetUserStatus changes a user's standing
func (r *MemoryRepo) SetUserStatus(_ context.Context, userID string, status model.UserStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return fmt.Errorf("set status for user %s: %w", userID, biddingerrors.ErrUserNotFound)
	}
	u.Status = status
	r.users[userID] = u
	return nil
}

// BanPhone records a phone number on the ban list
func (r *MemoryRepo) BanPhone(_ context.Context, phone, bannedUserID, _ string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bannedPhones[phone] = bannedUserID
	return nil
}

// IsPhoneBanned reports whether phone is on the ban list
func (r *MemoryRepo) IsPhoneBanned(_ context.Context, phone string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, banned := r.bannedPhones[phone]
	return banned, nil
}

// SaveIncident appends an incident report
func (r *MemoryRepo) SaveIncident(_ context.Context, incident model.Incident) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.incidents = append(r.incidents, incident)
	return nil
}

// DeviceTokens returns the push tokens registered for userID
func (r *MemoryRepo) DeviceTokens(_ context.Context, userID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.tokens[userID]), nil
}

// DeleteDeviceToken removes one push token of userID
func (r *MemoryRepo) DeleteDeviceToken(_ context.Context, userID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[userID] = slices.DeleteFunc(r.tokens[userID], func(t string) bool { return t == token })
	return nil
}

// AcquireLease grants the lease when it is free, expired, or already held by owner
func (r *MemoryRepo) AcquireLease(_ context.Context, name, owner string, ttl time.Duration, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.leases[name]; ok && l.owner != owner && l.expiresAt.After(now) {
		return false, nil
	}
	r.leases[name] = memoryLease{owner: owner, expiresAt: now.Add(ttl)}
	return true, nil
}

// ReleaseLease frees the lease if owner still holds it
func (r *MemoryRepo) ReleaseLease(_ context.Context, name, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.leases[name]; ok && l.owner == owner {
		delete(r.leases, name)
	}
	return nil
}

// AddProduct adds a product to the repository. This method is intended for seeding and tests.
func (r *MemoryRepo) AddProduct(product model.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	product = product.Clone()
	if product.Version == 0 {
		product.Version = 1
	}
	r.products[product.ID] = product
}

// AddBid appends a bid to a product's ledger outside any transaction. Intended for tests.
func (r *MemoryRepo) AddBid(bid model.Bid) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bids[bid.ProductID] = append(r.bids[bid.ProductID], bid)
}

// AddUser stores a user record. Intended for seeding and tests.
func (r *MemoryRepo) AddUser(user model.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.Status == "" {
		user.Status = model.UserActive
	}
	r.users[user.UserID] = user
}

// AddAdmin grants admin membership. Intended for seeding and tests.
func (r *MemoryRepo) AddAdmin(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admins[userID] = true
}

// RegisterDeviceToken adds a push token for userID
func (r *MemoryRepo) RegisterDeviceToken(userID, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !slices.Contains(r.tokens[userID], token) {
		r.tokens[userID] = append(r.tokens[userID], token)
	}
}

// Conversation returns a stored conversation. Intended for tests.
func (r *MemoryRepo) Conversation(conversationID string) (model.Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conversations[conversationID]
	return c, ok
}

// Incidents returns every stored incident. Intended for tests.
func (r *MemoryRepo) Incidents() []model.Incident {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.incidents)
}
