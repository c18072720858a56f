package models

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// prices travel as JSON numbers, not quoted strings
	decimal.MarshalJSONWithoutQuotes = true
}

// SaleType distinguishes auctions from fixed-price listings
type SaleType string

const (
	SaleTypeAuction    SaleType = "auction"
	SaleTypeDirectSale SaleType = "directSale"
)

// Valid reports whether t is a known sale type
func (t SaleType) Valid() bool {
	return t == SaleTypeAuction || t == SaleTypeDirectSale
}

// ProductStatus is the lifecycle state of a listing
type ProductStatus string

const (
	StatusActive              ProductStatus = "active"
	StatusPendingConfirmation ProductStatus = "pending_confirmation"
	StatusSold                ProductStatus = "sold"
)

// UserStatus is the account standing of a user
type UserStatus string

const (
	UserActive UserStatus = "active"
	UserBanned UserStatus = "banned"
)

// MaxAmount is the largest price a store can hold: DECIMAL(14,2)
var MaxAmount = decimal.RequireFromString("999999999999.99")

// ValidAmount reports whether d is a whole number of cents within MaxAmount.
// The sign is left to the caller.
func ValidAmount(d decimal.Decimal) bool {
	return d.Equal(d.Round(2)) && d.Abs().LessThanOrEqual(MaxAmount)
}

// ConversationClosed is the only conversation status the engine writes
const ConversationClosed = "closed"

// Product represents a listed item, either auctioned or sold at a fixed price.
// Empty HighestBidderID, WinnerID and BuyerID mean "none".
type Product struct {
	ID              string          `json:"product_id"`
	Title           string          `json:"title"`
	SaleType        SaleType        `json:"sale_type"`
	Status          ProductStatus   `json:"status"`
	StartPrice      decimal.Decimal `json:"start_price"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	HighestBidderID string          `json:"highest_bidder_id,omitempty"`
	WinnerID        string          `json:"winner_id,omitempty"`
	BidderIDs       []string        `json:"bidder_ids"`
	EndTime         time.Time       `json:"end_time,omitzero"`
	SellerID        string          `json:"seller_id"`
	BuyerID         string          `json:"buyer_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`

	// Version is bumped by the store on every committed write.
	Version uint64 `json:"-"`
}

// IsAuction reports whether the product is sold by auction
func (p Product) IsAuction() bool {
	return p.SaleType == SaleTypeAuction
}

// Expired reports whether an auction's deadline is at or before now
func (p Product) Expired(now time.Time) bool {
	return p.IsAuction() && !p.EndTime.IsZero() && !p.EndTime.After(now)
}

// AddBidder adds userID to the bidder set
func (p *Product) AddBidder(userID string) {
	if !slices.Contains(p.BidderIDs, userID) {
		p.BidderIDs = append(p.BidderIDs, userID)
	}
}

// RemoveBidder removes userID from the bidder set
func (p *Product) RemoveBidder(userID string) {
	p.BidderIDs = slices.DeleteFunc(p.BidderIDs, func(id string) bool { return id == userID })
}

// Clone returns a copy that shares no slices with p
func (p Product) Clone() Product {
	p.BidderIDs = slices.Clone(p.BidderIDs)
	return p
}

// Bid represents a user's bid on a product
type Bid struct {
	BidID     string          `json:"bid_id"`
	ProductID string          `json:"product_id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// Conversation is a per-product, per-counterparty chat thread. The engine only
// ever writes the closed status and the system message fields.
type Conversation struct {
	ConversationID      string    `json:"conversation_id"`
	ProductID           string    `json:"product_id"`
	Participants        []string  `json:"participants"`
	Status              string    `json:"status"`
	LastMessage         string    `json:"last_message"`
	LastMessageAt       time.Time `json:"last_message_at"`
	LastMessageSenderID string    `json:"last_message_sender_id"`
}

// ConversationClosure is the narrow write the engine performs on a chat thread
type ConversationClosure struct {
	ConversationID string
	ProductID      string
	UserID         string
	Message        string
	SenderID       string
	ClosedAt       time.Time
}

// ConversationID builds the productId_userId key of a conversation
func ConversationID(productID, userID string) string {
	return productID + "_" + userID
}

// User represents a marketplace participant
type User struct {
	UserID       string     `json:"user_id"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone,omitempty"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at,omitzero"`
	LastSignInAt time.Time  `json:"last_sign_in_at,omitzero"`
}

// Incident is an administrator's report against a user's bid
type Incident struct {
	IncidentID      string          `json:"incident_id"`
	ReportedUserID  string          `json:"reported_user_id"`
	ProductID       string          `json:"product_id"`
	ProductTitle    string          `json:"product_title"`
	BidAmount       decimal.Decimal `json:"bid_amount"`
	Reason          string          `json:"reason"`
	Status          string          `json:"status"`
	UserExplanation string          `json:"user_explanation,omitempty"`
	ReportedAt      time.Time       `json:"reported_at"`
}

// Caller is the authenticated identity invoking an operation; empty UserID means anonymous
type Caller struct {
	UserID string
}

// Authenticated reports whether the caller carries an identity
func (c Caller) Authenticated() bool {
	return c.UserID != ""
}

// Result is the outcome returned by every engine operation
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
