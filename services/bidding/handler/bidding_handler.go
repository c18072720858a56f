package handler

//go:generate mockgen -source=bidding_handler.go -destination=mock_bidding_handler.go -package=handler

import (
	"context"
	"net/http"
	"time"

	"auction-engine/internal/accounts"
	bidding "auction-engine/internal/biddingService"
	model "auction-engine/internal/models"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type BiddingServiceInterface interface {
	CreateProduct(ctx context.Context, caller model.Caller, in bidding.NewProduct) (model.Product, error)
	GetProduct(ctx context.Context, productID string) (model.Product, error)
	GetBids(ctx context.Context, productID string) ([]model.Bid, error)
	GetWinningBid(ctx context.Context, productID string) (model.Bid, error)
	GetProductsByBidder(ctx context.Context, userID string) ([]model.Product, error)
	PlaceBid(ctx context.Context, caller model.Caller, productID string, amount decimal.Decimal) (model.Result, error)
	BuyNow(ctx context.Context, caller model.Caller, productID string) (model.Result, error)
	AnnulBid(ctx context.Context, caller model.Caller, productID, bidID, annulledUserID string) (model.Result, error)
	ConfirmSale(ctx context.Context, caller model.Caller, productID string) (model.Result, error)
}

type AccountServiceInterface interface {
	BanUser(ctx context.Context, caller model.Caller, userID string) (model.Result, error)
	ReportIncident(ctx context.Context, caller model.Caller, report accounts.IncidentReport) (model.Result, error)
	ScreenRegistration(ctx context.Context, phone string) error
	ListUsers(ctx context.Context, caller model.Caller) ([]model.User, error)
}

type BiddingHandler struct {
	service  BiddingServiceInterface
	accounts AccountServiceInterface
}

func NewBiddingHandler(service BiddingServiceInterface, accounts AccountServiceInterface) *BiddingHandler {
	return &BiddingHandler{service: service, accounts: accounts}
}

// CreateProductHandler handles POST /products
func (h *BiddingHandler) CreateProductHandler(c *gin.Context) {
	var req helpers.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateProductHandler", err)
		return
	}

	caller := helpers.CallerFrom(c)
	product, err := h.service.CreateProduct(c.Request.Context(), caller, bidding.NewProduct{
		Title:      req.Title,
		SaleType:   model.SaleType(req.SaleType),
		StartPrice: req.StartPrice,
		EndTime:    req.EndTime,
	})
	if err != nil {
		helpers.HandleServiceError(c, "CreateProductHandler", err, map[string]any{"seller_id": caller.UserID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, product, "product created successfully")
	helpers.LogSuccess("CreateProductHandler", "product created successfully", map[string]any{
		"product_id": product.ID,
		"seller_id":  caller.UserID,
	})
}

// GetProductHandler handles GET /products/:product_id
func (h *BiddingHandler) GetProductHandler(c *gin.Context) {
	productID := c.Param("product_id")
	product, err := h.service.GetProduct(c.Request.Context(), productID)
	if err != nil {
		helpers.HandleServiceError(c, "GetProductHandler", err, map[string]any{"product_id": productID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, product, "product retrieved successfully")
}

// GetBidsByProductHandler handles GET /products/:product_id/bids
func (h *BiddingHandler) GetBidsByProductHandler(c *gin.Context) {
	productID := c.Param("product_id")
	bids, err := h.service.GetBids(c.Request.Context(), productID)
	if err != nil {
		helpers.HandleServiceError(c, "GetBidsByProductHandler", err, map[string]any{"product_id": productID})
		return
	}

	resp := make([]helpers.BidResponse, 0, len(bids))
	for _, b := range bids {
		resp = append(resp, toBidResponse(b))
	}

	utils.JSONResponse(c, http.StatusOK, resp, "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByProductHandler", "bids retrieved successfully", map[string]any{
		"product_id": productID,
		"count":      len(resp),
	})
}

// GetWinningBidHandler handles GET /products/:product_id/winning
func (h *BiddingHandler) GetWinningBidHandler(c *gin.Context) {
	productID := c.Param("product_id")
	bid, err := h.service.GetWinningBid(c.Request.Context(), productID)
	if err != nil {
		helpers.HandleServiceError(c, "GetWinningBidHandler", err, map[string]any{"product_id": productID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, toBidResponse(bid), "winning bid retrieved successfully")
}

// GetProductsByUserHandler handles GET /users/:user_id/products
func (h *BiddingHandler) GetProductsByUserHandler(c *gin.Context) {
	userID := c.Param("user_id")
	products, err := h.service.GetProductsByBidder(c.Request.Context(), userID)
	if err != nil {
		helpers.HandleServiceError(c, "GetProductsByUserHandler", err, map[string]any{"user_id": userID})
		return
	}

	if products == nil {
		products = []model.Product{}
	}

	utils.JSONResponse(c, http.StatusOK, products, "products retrieved successfully")
	helpers.LogSuccess("GetProductsByUserHandler", "products retrieved successfully", map[string]any{
		"user_id":        userID,
		"products_count": len(products),
	})
}

// PlaceBidHandler handles POST /products/:product_id/bids
func (h *BiddingHandler) PlaceBidHandler(c *gin.Context) {
	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	productID := c.Param("product_id")
	caller := helpers.CallerFrom(c)
	res, err := h.service.PlaceBid(c.Request.Context(), caller, productID, req.Amount.Decimal)
	if err != nil {
		helpers.HandleServiceError(c, "PlaceBidHandler", err, map[string]any{
			"product_id": productID,
			"user_id":    caller.UserID,
			"amount":     req.Amount.String(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, res, "bid recorded successfully")
}

// BuyNowHandler handles POST /products/:product_id/buy
func (h *BiddingHandler) BuyNowHandler(c *gin.Context) {
	productID := c.Param("product_id")
	caller := helpers.CallerFrom(c)
	res, err := h.service.BuyNow(c.Request.Context(), caller, productID)
	if err != nil {
		helpers.HandleServiceError(c, "BuyNowHandler", err, map[string]any{"product_id": productID, "user_id": caller.UserID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, res, "purchase completed successfully")
}

// AnnulBidHandler handles POST /products/:product_id/bids/:bid_id/annul
func (h *BiddingHandler) AnnulBidHandler(c *gin.Context) {
	var req helpers.AnnulBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "AnnulBidHandler", err)
		return
	}

	productID, bidID := c.Param("product_id"), c.Param("bid_id")
	res, err := h.service.AnnulBid(c.Request.Context(), helpers.CallerFrom(c), productID, bidID, req.AnnulledUserID)
	if err != nil {
		helpers.HandleServiceError(c, "AnnulBidHandler", err, map[string]any{"product_id": productID, "bid_id": bidID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, res, "bid annulled successfully")
}

// ConfirmSaleHandler handles POST /products/:product_id/confirm
func (h *BiddingHandler) ConfirmSaleHandler(c *gin.Context) {
	productID := c.Param("product_id")
	res, err := h.service.ConfirmSale(c.Request.Context(), helpers.CallerFrom(c), productID)
	if err != nil {
		helpers.HandleServiceError(c, "ConfirmSaleHandler", err, map[string]any{"product_id": productID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, res, "sale confirmed successfully")
}

// BanUserHandler handles POST /admin/users/:user_id/ban
func (h *BiddingHandler) BanUserHandler(c *gin.Context) {
	userID := c.Param("user_id")
	res, err := h.accounts.BanUser(c.Request.Context(), helpers.CallerFrom(c), userID)
	if err != nil {
		helpers.HandleServiceError(c, "BanUserHandler", err, map[string]any{"user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, res, "user banned successfully")
}

// ListUsersHandler handles GET /admin/users
func (h *BiddingHandler) ListUsersHandler(c *gin.Context) {
	caller := helpers.CallerFrom(c)
	users, err := h.accounts.ListUsers(c.Request.Context(), caller)
	if err != nil {
		helpers.HandleServiceError(c, "ListUsersHandler", err, map[string]any{"admin_id": caller.UserID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, users, "users retrieved successfully")
	helpers.LogSuccess("ListUsersHandler", "users retrieved successfully", map[string]any{"count": len(users)})
}

// ReportIncidentHandler handles POST /admin/incidents
func (h *BiddingHandler) ReportIncidentHandler(c *gin.Context) {
	var req helpers.ReportIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "ReportIncidentHandler", err)
		return
	}

	res, err := h.accounts.ReportIncident(c.Request.Context(), helpers.CallerFrom(c), accounts.IncidentReport{
		ReportedUserID: req.ReportedUserID,
		ProductID:      req.ProductID,
		ProductTitle:   req.ProductTitle,
		BidAmount:      req.BidAmount,
		Reason:         req.Reason,
	})
	if err != nil {
		helpers.HandleServiceError(c, "ReportIncidentHandler", err, map[string]any{"reported_user_id": req.ReportedUserID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, res, "incident reported successfully")
}

// ScreenRegistrationHandler handles POST /registrations/screen
func (h *BiddingHandler) ScreenRegistrationHandler(c *gin.Context) {
	var req helpers.ScreenRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "ScreenRegistrationHandler", err)
		return
	}

	if err := h.accounts.ScreenRegistration(c.Request.Context(), req.Phone); err != nil {
		helpers.HandleServiceError(c, "ScreenRegistrationHandler", err, nil)
		return
	}

	utils.JSONResponse(c, http.StatusOK, model.Result{Success: true, Message: "registration allowed"}, "registration allowed")
}

func toBidResponse(b model.Bid) helpers.BidResponse {
	return helpers.BidResponse{
		BidID:     b.BidID,
		ProductID: b.ProductID,
		UserID:    b.UserID,
		Amount:    b.Amount,
		CreatedAt: b.CreatedAt.UTC().Format(time.RFC3339),
	}
}
