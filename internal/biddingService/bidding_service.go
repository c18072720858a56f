package bidding

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"auction-engine/internal/accounts"
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/ledger"
	"auction-engine/internal/models"
	"auction-engine/internal/notification"
	"auction-engine/internal/repository"
	"auction-engine/utils"
)

// System messages written to conversations the engine closes
const (
	ConfirmSaleMessage = "This conversation has been closed by the administrator."
	AnnulBidMessage    = "Your bid has been annulled by the administrator."
)

// BiddingService implements the auction lifecycle: bidding, direct purchase,
// annulment, sale confirmation and the closing sweep
type BiddingService struct {
	repo  repository.AuctionDB
	auth  *accounts.Authorizer
	queue notification.Queue
	now   func() time.Time
}

// Option configures a BiddingService
type Option func(*BiddingService)

// WithClock replaces time.Now, used for timestamps and deadlines
func WithClock(now func() time.Time) Option {
	return func(s *BiddingService) { s.now = now }
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.AuctionDB, auth *accounts.Authorizer, queue notification.Queue, opts ...Option) *BiddingService {
	s := &BiddingService{
		repo:  repo,
		auth:  auth,
		queue: queue,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceBid records a bid above the current price and makes the caller the
// leader. The previous leader, if any, is told they were outbid once the
// transaction has committed.
func (s *BiddingService) PlaceBid(ctx context.Context, caller models.Caller, productID string, amount decimal.Decimal) (models.Result, error) {
	if err := s.auth.RequireActiveUser(ctx, caller); err != nil {
		return models.Result{}, err
	}
	if productID == "" || !amount.IsPositive() {
		return models.Result{}, biddingerrors.New(biddingerrors.InvalidArgument, "the bid data is not valid")
	}
	if !models.ValidAmount(amount) {
		return models.Result{}, biddingerrors.New(biddingerrors.InvalidArgument,
			"the bid must be a whole number of cents no greater than %s", models.MaxAmount.StringFixed(2))
	}

	var previousLeader, title string
	err := s.repo.RunTransaction(ctx, func(tx repository.Tx) error {
		p, err := loadProduct(tx, productID)
		if err != nil {
			return err
		}

		previousLeader = p.HighestBidderID
		title = titleOr(p.Title, "your item")

		if p.Status != models.StatusActive {
			return biddingerrors.New(biddingerrors.FailedPrecondition, "the auction is no longer active")
		}
		if !p.IsAuction() {
			return biddingerrors.New(biddingerrors.FailedPrecondition, "this product is not an auction")
		}
		if amount.LessThanOrEqual(p.CurrentPrice) {
			return biddingerrors.New(biddingerrors.FailedPrecondition,
				"your bid must be greater than the current price of $%s", p.CurrentPrice.StringFixed(2))
		}

		now := s.now().UTC()
		bid := models.Bid{
			BidID:     utils.NewBidID(now),
			ProductID: productID,
			UserID:    caller.UserID,
			Amount:    amount,
			CreatedAt: now,
		}
		if err := tx.AddBid(bid); err != nil {
			return err
		}

		p.CurrentPrice = amount
		p.HighestBidderID = caller.UserID
		p.AddBidder(caller.UserID)
		return tx.UpdateProduct(p)
	})
	if err != nil {
		return models.Result{}, s.fail("an error occurred while processing your bid", err, map[string]any{
			"product_id": productID,
			"user_id":    caller.UserID,
			"amount":     amount.String(),
		})
	}

	utils.Info("bid placed", map[string]any{
		"product_id": productID,
		"user_id":    caller.UserID,
		"amount":     amount.String(),
	})

	if previousLeader != "" && previousLeader != caller.UserID {
		s.queue.Enqueue(ctx, notification.Request{
			UserID:  previousLeader,
			Message: notification.Outbid(productID, title),
		})
	}

	return models.Result{Success: true, Message: "Bid placed."}, nil
}

// BuyNow sells an active direct-sale product to the caller
func (s *BiddingService) BuyNow(ctx context.Context, caller models.Caller, productID string) (models.Result, error) {
	if err := s.auth.RequireActiveUser(ctx, caller); err != nil {
		return models.Result{}, err
	}
	if productID == "" {
		return models.Result{}, biddingerrors.New(biddingerrors.InvalidArgument, "the product id is required")
	}

	err := s.repo.RunTransaction(ctx, func(tx repository.Tx) error {
		p, err := loadProduct(tx, productID)
		if err != nil {
			return err
		}

		if p.SaleType != models.SaleTypeDirectSale {
			return biddingerrors.New(biddingerrors.FailedPrecondition, "this product is not for direct sale")
		}
		if p.Status != models.StatusActive {
			return biddingerrors.New(biddingerrors.FailedPrecondition, "this product is no longer available")
		}
		if p.SellerID == caller.UserID {
			return biddingerrors.New(biddingerrors.FailedPrecondition, "you cannot buy your own product")
		}

		p.Status = models.StatusSold
		p.BuyerID = caller.UserID
		return tx.UpdateProduct(p)
	})
	if err != nil {
		return models.Result{}, s.fail("an error occurred while processing your purchase", err, map[string]any{
			"product_id": productID,
			"user_id":    caller.UserID,
		})
	}

	utils.Info("product sold", map[string]any{"product_id": productID, "buyer_id": caller.UserID})
	return models.Result{Success: true, Message: "Purchase completed."}, nil
}

// AnnulBid deletes a bid and promotes the strongest remaining bid placed by
// anyone other than annulledUserID. When none remains the price returns to
// the start price and the product has no leader.
func (s *BiddingService) AnnulBid(ctx context.Context, caller models.Caller, productID, bidID, annulledUserID string) (models.Result, error) {
	if err := s.auth.RequireAdmin(ctx, caller); err != nil {
		return models.Result{}, err
	}
	if productID == "" || bidID == "" || annulledUserID == "" {
		return models.Result{}, biddingerrors.New(biddingerrors.InvalidArgument, "product id, bid id and annulled user id are required")
	}

	var newLeader string
	err := s.repo.RunTransaction(ctx, func(tx repository.Tx) error {
		p, err := loadProduct(tx, productID)
		if err != nil {
			return err
		}
		if p.Status == models.StatusSold {
			return biddingerrors.New(biddingerrors.FailedPrecondition, "the product has already been sold")
		}

		bids, err := tx.BidsByAmountDesc(productID)
		if err != nil {
			return err
		}
		if err := tx.DeleteBid(productID, bidID); err != nil {
			return err
		}

		next, ok := ledger.NextLeader(ledger.Without(bids, bidID), annulledUserID)
		if ok {
			newLeader = next.UserID
			p.CurrentPrice = next.Amount
		} else {
			newLeader = ""
			p.CurrentPrice = p.StartPrice
		}
		p.HighestBidderID = newLeader
		p.WinnerID = newLeader
		p.RemoveBidder(annulledUserID)

		if err := tx.UpdateProduct(p); err != nil {
			return err
		}
		return tx.CloseConversation(models.ConversationClosure{
			ConversationID: models.ConversationID(productID, annulledUserID),
			ProductID:      productID,
			UserID:         annulledUserID,
			Message:        AnnulBidMessage,
			SenderID:       caller.UserID,
			ClosedAt:       s.now().UTC(),
		})
	})
	if err != nil {
		return models.Result{}, s.fail("an error occurred while annulling the bid", err, map[string]any{
			"product_id": productID,
			"bid_id":     bidID,
		})
	}

	utils.Info("bid annulled", map[string]any{
		"product_id":       productID,
		"bid_id":           bidID,
		"annulled_user_id": annulledUserID,
		"new_leader_id":    newLeader,
		"admin_id":         caller.UserID,
	})
	return models.Result{Success: true, Message: "Bid annulled. The next bidder has been promoted."}, nil
}

// ConfirmSale marks a closed auction as sold to its winner and closes the
// winner's conversation
func (s *BiddingService) ConfirmSale(ctx context.Context, caller models.Caller, productID string) (models.Result, error) {
	if err := s.auth.RequireAdmin(ctx, caller); err != nil {
		return models.Result{}, err
	}
	if productID == "" {
		return models.Result{}, biddingerrors.New(biddingerrors.InvalidArgument, "the product id is required")
	}

	err := s.repo.RunTransaction(ctx, func(tx repository.Tx) error {
		p, err := loadProduct(tx, productID)
		if err != nil {
			return err
		}

		if p.Status == models.StatusSold {
			return biddingerrors.New(biddingerrors.FailedPrecondition, "this product has already been sold")
		}
		if p.WinnerID == "" {
			return biddingerrors.New(biddingerrors.FailedPrecondition, "this product has no winner assigned")
		}
		if p.Status != models.StatusPendingConfirmation {
			return biddingerrors.New(biddingerrors.FailedPrecondition, "the auction has not closed yet")
		}

		p.Status = models.StatusSold
		if err := tx.UpdateProduct(p); err != nil {
			return err
		}
		return tx.CloseConversation(models.ConversationClosure{
			ConversationID: models.ConversationID(productID, p.WinnerID),
			ProductID:      productID,
			UserID:         p.WinnerID,
			Message:        ConfirmSaleMessage,
			SenderID:       caller.UserID,
			ClosedAt:       s.now().UTC(),
		})
	})
	if err != nil {
		return models.Result{}, s.fail("an error occurred while confirming the sale", err, map[string]any{
			"product_id": productID,
		})
	}

	utils.Info("sale confirmed", map[string]any{"product_id": productID, "admin_id": caller.UserID})
	return models.Result{Success: true, Message: "Sale confirmed and conversation closed."}, nil
}

// SweepReport summarizes one CloseAuctions run
type SweepReport struct {
	Examined int `json:"examined"`
	Closed   int `json:"closed"`
	Notified int `json:"notified"`
	Failed   int `json:"failed"`
}

// CloseAuctions moves every active auction past its deadline to
// pending_confirmation with the current leader as winner. Each product closes
// in its own transaction that re-checks the status, so a product closed by a
// concurrent run is skipped. Winners are notified after all writes.
func (s *BiddingService) CloseAuctions(ctx context.Context) (SweepReport, error) {
	now := s.now().UTC()

	expired, err := s.repo.FindExpiredAuctions(ctx, now)
	if err != nil {
		return SweepReport{}, s.fail("failed to query expired auctions", err, nil)
	}

	report := SweepReport{Examined: len(expired)}
	var winners []notification.Request

	for _, candidate := range expired {
		var closed bool
		var winner, title string

		err := s.repo.RunTransaction(ctx, func(tx repository.Tx) error {
			closed = false
			p, err := loadProduct(tx, candidate.ID)
			if err != nil {
				return err
			}
			if p.Status != models.StatusActive || !p.Expired(now) {
				return nil
			}

			p.Status = models.StatusPendingConfirmation
			p.WinnerID = p.HighestBidderID
			if err := tx.UpdateProduct(p); err != nil {
				return err
			}

			closed = true
			winner = p.WinnerID
			title = titleOr(p.Title, "an item")
			return nil
		})
		if err != nil {
			report.Failed++
			utils.Error("failed to close auction", map[string]any{
				"product_id": candidate.ID,
				"error":      err.Error(),
			})
			continue
		}
		if !closed {
			continue
		}

		report.Closed++
		utils.Info("auction closed", map[string]any{"product_id": candidate.ID, "winner_id": winner})
		if winner != "" {
			winners = append(winners, notification.Request{
				UserID:  winner,
				Message: notification.AuctionWon(candidate.ID, title),
			})
		}
	}

	for _, req := range winners {
		s.queue.Enqueue(ctx, req)
		report.Notified++
	}

	return report, nil
}

// NewProduct is the seller's input for a listing
type NewProduct struct {
	Title      string
	SaleType   models.SaleType
	StartPrice decimal.Decimal
	EndTime    time.Time
}

// CreateProduct lists a new product owned by the caller
func (s *BiddingService) CreateProduct(ctx context.Context, caller models.Caller, in NewProduct) (models.Product, error) {
	if err := s.auth.RequireActiveUser(ctx, caller); err != nil {
		return models.Product{}, err
	}

	now := s.now().UTC()
	switch {
	case in.Title == "":
		return models.Product{}, biddingerrors.New(biddingerrors.InvalidArgument, "the title is required")
	case !in.SaleType.Valid():
		return models.Product{}, biddingerrors.New(biddingerrors.InvalidArgument, "unknown sale type %q", in.SaleType)
	case in.StartPrice.IsNegative():
		return models.Product{}, biddingerrors.New(biddingerrors.InvalidArgument, "the start price cannot be negative")
	case !models.ValidAmount(in.StartPrice):
		return models.Product{}, biddingerrors.New(biddingerrors.InvalidArgument,
			"the start price must be a whole number of cents no greater than %s", models.MaxAmount.StringFixed(2))
	case in.SaleType == models.SaleTypeAuction && !in.EndTime.After(now):
		return models.Product{}, biddingerrors.New(biddingerrors.InvalidArgument, "an auction needs an end time in the future")
	}

	p := models.Product{
		ID:           utils.GenerateID(),
		Title:        in.Title,
		SaleType:     in.SaleType,
		Status:       models.StatusActive,
		StartPrice:   in.StartPrice,
		CurrentPrice: in.StartPrice,
		BidderIDs:    []string{},
		SellerID:     caller.UserID,
		CreatedAt:    now,
	}
	if in.SaleType == models.SaleTypeAuction {
		p.EndTime = in.EndTime.UTC()
	}

	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return models.Product{}, s.fail("failed to create product", err, map[string]any{"seller_id": caller.UserID})
	}

	utils.Info("product created", map[string]any{"product_id": p.ID, "sale_type": p.SaleType, "seller_id": p.SellerID})
	return p, nil
}

// GetProduct returns a single product
func (s *BiddingService) GetProduct(ctx context.Context, productID string) (models.Product, error) {
	if productID == "" {
		return models.Product{}, biddingerrors.New(biddingerrors.InvalidArgument, "empty product ID")
	}

	p, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return models.Product{}, s.fail("failed to get product", err, map[string]any{"product_id": productID})
	}
	return p, nil
}

// GetBids returns all bids for a product, strongest first
func (s *BiddingService) GetBids(ctx context.Context, productID string) ([]models.Bid, error) {
	if productID == "" {
		return nil, biddingerrors.New(biddingerrors.InvalidArgument, "empty product ID")
	}

	bids, err := s.repo.GetBidsByProduct(ctx, productID)
	if err != nil {
		return nil, s.fail("failed to get bids", err, map[string]any{"product_id": productID})
	}
	return ledger.SortByAmountDesc(bids), nil
}

// GetWinningBid returns the leading bid for a product
func (s *BiddingService) GetWinningBid(ctx context.Context, productID string) (models.Bid, error) {
	bids, err := s.GetBids(ctx, productID)
	if err != nil {
		return models.Bid{}, err
	}

	winning, ok := ledger.Leader(bids)
	if !ok {
		return models.Bid{}, biddingerrors.New(biddingerrors.NotFound, "no bids found for product %s", productID)
	}
	return winning, nil
}

// GetProductsByBidder returns all products a user has bid on
func (s *BiddingService) GetProductsByBidder(ctx context.Context, userID string) ([]models.Product, error) {
	if userID == "" {
		return nil, biddingerrors.New(biddingerrors.InvalidArgument, "empty user ID")
	}

	products, err := s.repo.GetProductsByBidder(ctx, userID)
	if err != nil {
		return nil, s.fail("failed to get products", err, map[string]any{"user_id": userID})
	}
	return products, nil
}

// loadProduct reads a product inside tx, turning a missing row into NotFound
func loadProduct(tx repository.Tx, productID string) (models.Product, error) {
	p, err := tx.GetProduct(productID)
	if errors.Is(err, biddingerrors.ErrProductNotFound) {
		return models.Product{}, biddingerrors.New(biddingerrors.NotFound, "product %s does not exist", productID)
	}
	return p, err
}

// fail returns typed failures unchanged and turns anything else into a
// logged Internal failure carrying message
func (s *BiddingService) fail(message string, err error, fields map[string]any) error {
	if biddingerrors.IsTyped(err) {
		return err
	}
	if errors.Is(err, biddingerrors.ErrProductNotFound) {
		return biddingerrors.New(biddingerrors.NotFound, "product does not exist")
	}

	if fields == nil {
		fields = map[string]any{}
	}
	fields["error"] = err.Error()
	utils.Error(message, fields)
	return biddingerrors.Wrap(err, message)
}

func titleOr(title, fallback string) string {
	if title == "" {
		return fallback
	}
	return title
}
