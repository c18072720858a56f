package server

import (
	"net/http"

	handler "auction-engine/services/bidding/handler"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// SetupRouter configures all Gin routes for the application
func SetupRouter(biddingService handler.BiddingServiceInterface, accountService handler.AccountServiceInterface) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.CustomRecovery(recoverPanic))
	router.Use(CallerIdentityMiddleware)
	router.Use(RequestLoggerMiddleware) // custom request logging

	biddingHandler := handler.NewBiddingHandler(biddingService, accountService)

	products := router.Group("/products")
	{
		products.POST("", biddingHandler.CreateProductHandler)
		products.GET("/:product_id", biddingHandler.GetProductHandler)
		products.GET("/:product_id/bids", biddingHandler.GetBidsByProductHandler)
		products.GET("/:product_id/winning", biddingHandler.GetWinningBidHandler)
		products.POST("/:product_id/bids", biddingHandler.PlaceBidHandler)
		products.POST("/:product_id/buy", biddingHandler.BuyNowHandler)
		products.POST("/:product_id/bids/:bid_id/annul", biddingHandler.AnnulBidHandler)
		products.POST("/:product_id/confirm", biddingHandler.ConfirmSaleHandler)
	}

	users := router.Group("/users")
	{
		users.GET("/:user_id/products", biddingHandler.GetProductsByUserHandler)
	}

	admin := router.Group("/admin")
	{
		admin.GET("/users", biddingHandler.ListUsersHandler)
		admin.POST("/users/:user_id/ban", biddingHandler.BanUserHandler)
		admin.POST("/incidents", biddingHandler.ReportIncidentHandler)
	}

	router.POST("/registrations/screen", biddingHandler.ScreenRegistrationHandler)

	return router
}

// recoverPanic turns a handler panic into the standard internal error envelope
func recoverPanic(c *gin.Context, recovered any) {
	utils.Error("recovered from panic", map[string]any{
		"path":  c.Request.URL.Path,
		"panic": recovered,
	})
	utils.AbortWithError(c, http.StatusInternalServerError, "internal", "internal server error")
}
