package accounts

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
)

func TestAuthorizer_RequireActiveUser(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		caller    model.Caller
		mockSetup func(dir *repository.MockDirectory)
		wantKind  biddingerrors.Kind
		wantErr   bool
	}{
		{
			name:      "anonymous",
			caller:    model.Caller{},
			mockSetup: func(*repository.MockDirectory) {},
			wantKind:  biddingerrors.Unauthenticated,
			wantErr:   true,
		},
		{
			name:   "active",
			caller: model.Caller{UserID: "u1"},
			mockSetup: func(dir *repository.MockDirectory) {
				dir.EXPECT().GetUser(gomock.Any(), "u1").Return(model.User{UserID: "u1", Status: model.UserActive}, nil)
			},
		},
		{
			name:   "missing_record_counts_as_active",
			caller: model.Caller{UserID: "u1"},
			mockSetup: func(dir *repository.MockDirectory) {
				dir.EXPECT().GetUser(gomock.Any(), "u1").Return(model.User{}, fmt.Errorf("get user: %w", biddingerrors.ErrUserNotFound))
			},
		},
		{
			name:   "banned",
			caller: model.Caller{UserID: "u1"},
			mockSetup: func(dir *repository.MockDirectory) {
				dir.EXPECT().GetUser(gomock.Any(), "u1").Return(model.User{UserID: "u1", Status: model.UserBanned}, nil)
			},
			wantKind: biddingerrors.PermissionDenied,
			wantErr:  true,
		},
		{
			name:   "lookup_failure",
			caller: model.Caller{UserID: "u1"},
			mockSetup: func(dir *repository.MockDirectory) {
				dir.EXPECT().GetUser(gomock.Any(), "u1").Return(model.User{}, errors.New("connection refused"))
			},
			wantKind: biddingerrors.Internal,
			wantErr:  true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			dir := repository.NewMockDirectory(ctrl)
			tc.mockSetup(dir)

			err := NewAuthorizer(dir).RequireActiveUser(context.Background(), tc.caller)
			if !tc.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Equal(t, tc.wantKind, biddingerrors.KindOf(err))
		})
	}
}

func TestAuthorizer_RequireAdmin(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dir := repository.NewMockDirectory(ctrl)
	dir.EXPECT().IsAdmin(gomock.Any(), "admin").Return(true, nil)
	dir.EXPECT().IsAdmin(gomock.Any(), "u1").Return(false, nil)
	dir.EXPECT().IsAdmin(gomock.Any(), "u2").Return(false, errors.New("timeout"))

	auth := NewAuthorizer(dir)
	ctx := context.Background()

	require.NoError(t, auth.RequireAdmin(ctx, model.Caller{UserID: "admin"}))
	require.ErrorIs(t, auth.RequireAdmin(ctx, model.Caller{UserID: "u1"}), biddingerrors.ErrPermissionDenied)
	require.ErrorIs(t, auth.RequireAdmin(ctx, model.Caller{}), biddingerrors.ErrPermissionDenied)
	require.ErrorIs(t, auth.RequireAdmin(ctx, model.Caller{UserID: "u2"}), biddingerrors.ErrInternal)
}

func newService(repo *repository.MemoryRepo) *Service {
	return NewService(NewAuthorizer(repo), repo)
}

func TestService_BanUser(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryRepo()
	repo.AddAdmin("admin")
	repo.AddUser(model.User{UserID: "u1", Phone: "+34600000000"})
	repo.AddUser(model.User{UserID: "u2"})
	svc := newService(repo)
	ctx := context.Background()
	admin := model.Caller{UserID: "admin"}

	res, err := svc.BanUser(ctx, admin, "u1")
	require.NoError(t, err)
	require.True(t, res.Success)

	u, err := repo.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, model.UserBanned, u.Status)

	banned, err := repo.IsPhoneBanned(ctx, "+34600000000")
	require.NoError(t, err)
	require.True(t, banned)

	// a user without a phone is banned without touching the phone list
	_, err = svc.BanUser(ctx, admin, "u2")
	require.NoError(t, err)

	_, err = svc.BanUser(ctx, admin, "ghost")
	require.ErrorIs(t, err, biddingerrors.ErrNotFound)

	_, err = svc.BanUser(ctx, admin, "")
	require.ErrorIs(t, err, biddingerrors.ErrInvalidArgument)

	_, err = svc.BanUser(ctx, model.Caller{UserID: "u2"}, "u1")
	require.ErrorIs(t, err, biddingerrors.ErrPermissionDenied)
}

func TestService_BanUser_RecordsReason(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	dir := repository.NewMockDirectory(ctrl)
	dir.EXPECT().IsAdmin(gomock.Any(), "admin").Return(true, nil)
	dir.EXPECT().GetUser(gomock.Any(), "u1").Return(model.User{UserID: "u1", Phone: "+1555"}, nil)
	dir.EXPECT().SetUserStatus(gomock.Any(), "u1", model.UserBanned).Return(nil)
	dir.EXPECT().BanPhone(gomock.Any(), "+1555", "u1", "banned by admin admin", at).Return(nil)

	svc := NewService(NewAuthorizer(dir), dir)
	svc.now = func() time.Time { return at }

	_, err := svc.BanUser(context.Background(), model.Caller{UserID: "admin"}, "u1")
	require.NoError(t, err)
}

func TestService_ReportIncident(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryRepo()
	repo.AddAdmin("admin")
	svc := newService(repo)
	ctx := context.Background()

	valid := IncidentReport{
		ReportedUserID: "u1",
		ProductID:      "p1",
		BidAmount:      decimal.NewFromInt(900),
		Reason:         "bid never paid",
	}

	tests := []struct {
		name     string
		caller   model.Caller
		report   func() IncidentReport
		wantKind biddingerrors.Kind
		wantErr  bool
	}{
		{name: "valid", caller: model.Caller{UserID: "admin"}, report: func() IncidentReport { return valid }},
		{
			name:     "not_admin",
			caller:   model.Caller{UserID: "u9"},
			report:   func() IncidentReport { return valid },
			wantKind: biddingerrors.PermissionDenied,
			wantErr:  true,
		},
		{
			name:   "missing_reason",
			caller: model.Caller{UserID: "admin"},
			report: func() IncidentReport {
				r := valid
				r.Reason = ""
				return r
			},
			wantKind: biddingerrors.InvalidArgument,
			wantErr:  true,
		},
		{
			name:   "sub_cent_amount",
			caller: model.Caller{UserID: "admin"},
			report: func() IncidentReport {
				r := valid
				r.BidAmount = decimal.RequireFromString("900.001")
				return r
			},
			wantKind: biddingerrors.InvalidArgument,
			wantErr:  true,
		},
		{
			name:   "zero_amount",
			caller: model.Caller{UserID: "admin"},
			report: func() IncidentReport {
				r := valid
				r.BidAmount = decimal.Zero
				return r
			},
			wantKind: biddingerrors.InvalidArgument,
			wantErr:  true,
		},
	}

	for _, tc := range tests {
		_, err := svc.ReportIncident(ctx, tc.caller, tc.report())
		if !tc.wantErr {
			require.NoError(t, err, tc.name)
			continue
		}
		require.Equal(t, tc.wantKind, biddingerrors.KindOf(err), tc.name)
	}

	incidents := repo.Incidents()
	require.Len(t, incidents, 1)
	require.Equal(t, IncidentUnresolved, incidents[0].Status)
	require.Equal(t, "N/A", incidents[0].ProductTitle)
	require.NotEmpty(t, incidents[0].IncidentID)
}

func TestService_ScreenRegistration(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryRepo()
	ctx := context.Background()
	require.NoError(t, repo.BanPhone(ctx, "+34600000000", "u1", "fraud", time.Now()))
	svc := newService(repo)

	require.NoError(t, svc.ScreenRegistration(ctx, ""))
	require.NoError(t, svc.ScreenRegistration(ctx, "+34611111111"))

	err := svc.ScreenRegistration(ctx, "+34600000000")
	require.ErrorIs(t, err, biddingerrors.ErrInvalidArgument)
	require.Equal(t, "this phone number has been suspended", biddingerrors.MessageOf(err))
}

func TestService_ListUsers(t *testing.T) {
	t.Parallel()

	joined := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	repo := repository.NewMemoryRepo()
	repo.AddAdmin("admin")
	repo.AddUser(model.User{UserID: "u2", Email: "b@example.com", CreatedAt: joined, LastSignInAt: joined.Add(time.Hour)})
	repo.AddUser(model.User{UserID: "u1", Email: "a@example.com", CreatedAt: joined})
	svc := newService(repo)
	ctx := context.Background()

	users, err := svc.ListUsers(ctx, model.Caller{UserID: "admin"})
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, "u1", users[0].UserID)
	require.Equal(t, "b@example.com", users[1].Email)
	require.Equal(t, joined, users[1].CreatedAt)
	require.Equal(t, joined.Add(time.Hour), users[1].LastSignInAt)

	_, err = svc.ListUsers(ctx, model.Caller{UserID: "u1"})
	require.ErrorIs(t, err, biddingerrors.ErrPermissionDenied)

	_, err = svc.ListUsers(ctx, model.Caller{})
	require.ErrorIs(t, err, biddingerrors.ErrPermissionDenied)
}

func TestService_ListUsers_StoreFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dir := repository.NewMockDirectory(ctrl)
	dir.EXPECT().IsAdmin(gomock.Any(), "admin").Return(true, nil)
	dir.EXPECT().ListUsers(gomock.Any(), MaxListedUsers).Return(nil, errors.New("connection reset"))

	_, err := NewService(NewAuthorizer(dir), dir).ListUsers(context.Background(), model.Caller{UserID: "admin"})
	require.ErrorIs(t, err, biddingerrors.ErrInternal)
}
