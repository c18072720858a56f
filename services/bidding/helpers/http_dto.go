package helpers

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrAmountNotNumber rejects an amount sent as a JSON string
var ErrAmountNotNumber = errors.New("amount must be a JSON number")

// NumericAmount is a decimal that binds only from a bare JSON number
type NumericAmount struct {
	decimal.Decimal
}

func (a *NumericAmount) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return ErrAmountNotNumber
	}
	return a.Decimal.UnmarshalJSON(data)
}

// Request/Response DTOs

// Amounts are validated by the service so that a zero or negative bid maps
// to invalid-argument like every other bad input.
type PlaceBidRequest struct {
	Amount NumericAmount `json:"amount"`
}

type CreateProductRequest struct {
	Title      string          `json:"title" binding:"required"`
	SaleType   string          `json:"sale_type" binding:"required,oneof=auction directSale"`
	StartPrice decimal.Decimal `json:"start_price"`
	EndTime    time.Time       `json:"end_time"`
}

type AnnulBidRequest struct {
	AnnulledUserID string `json:"annulled_user_id" binding:"required"`
}

type ReportIncidentRequest struct {
	ReportedUserID string          `json:"reported_user_id" binding:"required"`
	ProductID      string          `json:"product_id" binding:"required"`
	ProductTitle   string          `json:"product_title"`
	BidAmount      decimal.Decimal `json:"bid_amount"`
	Reason         string          `json:"reason" binding:"required"`
}

type ScreenRegistrationRequest struct {
	Phone string `json:"phone"`
}

type BidResponse struct {
	BidID     string          `json:"bid_id"`
	ProductID string          `json:"product_id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt string          `json:"created_at"`
}
