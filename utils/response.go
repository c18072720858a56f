package utils

import (
	"github.com/gin-gonic/gin"
)

// JSONResponse sends a structured JSON response
func JSONResponse(c *gin.Context, status int, data any, message string) {
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"data":    data,
	})
}

// JSONError sends a structured error response. kind is the machine-readable
// failure class (for example "failed-precondition").
func JSONError(c *gin.Context, status int, kind string, message string) {
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"error":   kind,
	})
}

// AbortWithError writes an error envelope and stops the handler chain
func AbortWithError(c *gin.Context, status int, kind string, message string) {
	JSONError(c, status, kind, message)
	c.Abort()
}
