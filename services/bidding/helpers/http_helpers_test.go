package helpers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"auction-engine/internal/biddingerrors"
)

func TestMapErrorToHTTP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{"unauthenticated", biddingerrors.New(biddingerrors.Unauthenticated, "sign in"), http.StatusUnauthorized, "sign in"},
		{"permission_denied", biddingerrors.New(biddingerrors.PermissionDenied, "admins only"), http.StatusForbidden, "admins only"},
		{"invalid_argument", biddingerrors.New(biddingerrors.InvalidArgument, "bad amount"), http.StatusBadRequest, "bad amount"},
		{"not_found", biddingerrors.New(biddingerrors.NotFound, "no such product"), http.StatusNotFound, "no such product"},
		{"failed_precondition", biddingerrors.New(biddingerrors.FailedPrecondition, "bid too low"), http.StatusConflict, "bid too low"},
		{"internal_hides_cause", biddingerrors.Wrap(errors.New("dsn leaked"), "failed"), http.StatusInternalServerError, "internal server error"},
		{"untyped", errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			status, message := MapErrorToHTTP(tc.err)
			require.Equal(t, tc.wantStatus, status)
			require.Equal(t, tc.wantMessage, message)
		})
	}
}
