package server

import (
	"strings"
	"time"

	model "auction-engine/internal/models"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// Headers set by the authentication gateway in front of the service
const (
	HeaderUserID    = "X-User-ID"
	HeaderRequestID = "X-Request-ID"
)

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	requestID := c.GetHeader(HeaderRequestID)
	if requestID == "" {
		requestID = utils.GenerateID()
	}
	c.Header(HeaderRequestID, requestID)

	c.Next() // process request

	utils.Info("HTTP Request", map[string]any{
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"status":     c.Writer.Status(),
		"latency":    time.Since(start).String(),
		"request_id": requestID,
		"user_id":    helpers.CallerFrom(c).UserID,
	})
}

// CallerIdentityMiddleware attaches the caller identity forwarded by the
// gateway. A missing header yields an anonymous caller; operations decide
// whether that is allowed.
func CallerIdentityMiddleware(c *gin.Context) {
	userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
	c.Set(helpers.CallerKey, model.Caller{UserID: userID})
	c.Next()
}
