package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	model "auction-engine/internal/models"
	"auction-engine/services/bidding/helpers"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestCallerIdentityMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var seen model.Caller
	router := gin.New()
	router.Use(CallerIdentityMiddleware, RequestLoggerMiddleware)
	router.GET("/whoami", func(c *gin.Context) {
		seen = helpers.CallerFrom(c)
		c.Status(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		header string
		want   model.Caller
	}{
		{name: "authenticated", header: "alice", want: model.Caller{UserID: "alice"}},
		{name: "trimmed", header: "  bob ", want: model.Caller{UserID: "bob"}},
		{name: "anonymous", header: "", want: model.Caller{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tc.header != "" {
				req.Header.Set(HeaderUserID, tc.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, http.StatusNoContent, w.Code)
			require.Equal(t, tc.want, seen)
			require.NotEmpty(t, w.Header().Get(HeaderRequestID))
		})
	}
}

func TestRequestLoggerMiddleware_KeepsIncomingRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RequestLoggerMiddleware)
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, "req-123", w.Header().Get(HeaderRequestID))
}

func TestRecoverPanic_WritesInternalEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(gin.CustomRecovery(recoverPanic))
	router.GET("/boom", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.JSONEq(t, `{"status":500,"message":"internal server error","error":"internal"}`, w.Body.String())
}
