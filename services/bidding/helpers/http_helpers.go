package helpers

import (
	"net/http"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// CallerKey is the gin context key holding the authenticated model.Caller
const CallerKey = "caller"

// CallerFrom returns the caller identity attached by the identity middleware
func CallerFrom(c *gin.Context) model.Caller {
	if v, ok := c.Get(CallerKey); ok {
		if caller, ok := v.(model.Caller); ok {
			return caller
		}
	}
	return model.Caller{}
}

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	utils.JSONError(c, http.StatusBadRequest, biddingerrors.InvalidArgument.String(), "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps a failure kind to an HTTP status code and caller-facing message
func MapErrorToHTTP(err error) (int, string) {
	switch biddingerrors.KindOf(err) {
	case biddingerrors.Unauthenticated:
		return http.StatusUnauthorized, biddingerrors.MessageOf(err)
	case biddingerrors.PermissionDenied:
		return http.StatusForbidden, biddingerrors.MessageOf(err)
	case biddingerrors.InvalidArgument:
		return http.StatusBadRequest, biddingerrors.MessageOf(err)
	case biddingerrors.NotFound:
		return http.StatusNotFound, biddingerrors.MessageOf(err)
	case biddingerrors.FailedPrecondition:
		return http.StatusConflict, biddingerrors.MessageOf(err)
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// HandleServiceError writes the error envelope for err and logs it
func HandleServiceError(c *gin.Context, handlerName string, err error, fields map[string]any) {
	status, message := MapErrorToHTTP(err)
	utils.JSONError(c, status, biddingerrors.KindOf(err).String(), message)

	if fields == nil {
		fields = map[string]any{}
	}
	fields["handler"] = handlerName
	fields["error"] = err.Error()
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": request failed", fields)
		return
	}
	utils.Warn(handlerName+": request rejected", fields)
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
