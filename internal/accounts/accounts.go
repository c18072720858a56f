// Package accounts holds the caller checks shared by every engine operation
// and the administrative account actions.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/utils"
)

const (
	// IncidentUnresolved is the status of a freshly reported incident
	IncidentUnresolved = "unresolved"

	// MaxListedUsers caps a single ListUsers page
	MaxListedUsers = 1000
)

// Authorizer answers who may call what
type Authorizer struct {
	dir repository.Directory
}

// NewAuthorizer creates an Authorizer backed by dir
func NewAuthorizer(dir repository.Directory) *Authorizer {
	return &Authorizer{dir: dir}
}

// RequireAuthenticated rejects anonymous callers
func (a *Authorizer) RequireAuthenticated(caller model.Caller) error {
	if !caller.Authenticated() {
		return biddingerrors.New(biddingerrors.Unauthenticated, "you must be signed in to perform this action")
	}
	return nil
}

// RequireActiveUser rejects anonymous and banned callers. A caller without a
// user record is treated as active.
func (a *Authorizer) RequireActiveUser(ctx context.Context, caller model.Caller) error {
	if err := a.RequireAuthenticated(caller); err != nil {
		return err
	}

	user, err := a.dir.GetUser(ctx, caller.UserID)
	switch {
	case errors.Is(err, biddingerrors.ErrUserNotFound):
		return nil
	case err != nil:
		return internal("failed to check account standing", err, map[string]any{"user_id": caller.UserID})
	case user.Status == model.UserBanned:
		return biddingerrors.New(biddingerrors.PermissionDenied, "your account has been suspended")
	}
	return nil
}

// RequireAdmin rejects callers that are not administrators
func (a *Authorizer) RequireAdmin(ctx context.Context, caller model.Caller) error {
	if !caller.Authenticated() {
		return biddingerrors.New(biddingerrors.PermissionDenied, "administrator permissions required")
	}

	ok, err := a.dir.IsAdmin(ctx, caller.UserID)
	if err != nil {
		return internal("failed to check administrator permissions", err, map[string]any{"user_id": caller.UserID})
	}
	if !ok {
		return biddingerrors.New(biddingerrors.PermissionDenied, "administrator permissions required")
	}
	return nil
}

// Service performs administrative account actions
type Service struct {
	auth *Authorizer
	dir  repository.Directory
	now  func() time.Time
}

// NewService creates the account service
func NewService(auth *Authorizer, dir repository.Directory) *Service {
	return &Service{auth: auth, dir: dir, now: time.Now}
}

// BanUser suspends userID and blocks their phone number from new registrations
func (s *Service) BanUser(ctx context.Context, caller model.Caller, userID string) (model.Result, error) {
	if err := s.auth.RequireAdmin(ctx, caller); err != nil {
		return model.Result{}, err
	}
	if userID == "" {
		return model.Result{}, biddingerrors.New(biddingerrors.InvalidArgument, "the id of the user to ban is required")
	}

	user, err := s.dir.GetUser(ctx, userID)
	if errors.Is(err, biddingerrors.ErrUserNotFound) {
		return model.Result{}, biddingerrors.New(biddingerrors.NotFound, "user %s does not exist", userID)
	}
	if err != nil {
		return model.Result{}, internal("failed to ban user", err, map[string]any{"user_id": userID})
	}

	if err := s.dir.SetUserStatus(ctx, userID, model.UserBanned); err != nil {
		return model.Result{}, internal("failed to ban user", err, map[string]any{"user_id": userID})
	}
	if user.Phone != "" {
		reason := fmt.Sprintf("banned by admin %s", caller.UserID)
		if err := s.dir.BanPhone(ctx, user.Phone, userID, reason, s.now().UTC()); err != nil {
			return model.Result{}, internal("failed to ban user", err, map[string]any{"user_id": userID})
		}
	}

	utils.Info("user banned", map[string]any{"user_id": userID, "admin_id": caller.UserID})
	return model.Result{Success: true, Message: "User banned."}, nil
}

// ListUsers returns up to MaxListedUsers accounts for administrators
func (s *Service) ListUsers(ctx context.Context, caller model.Caller) ([]model.User, error) {
	if err := s.auth.RequireAdmin(ctx, caller); err != nil {
		return nil, err
	}

	users, err := s.dir.ListUsers(ctx, MaxListedUsers)
	if err != nil {
		return nil, internal("failed to list users", err, map[string]any{"admin_id": caller.UserID})
	}
	if users == nil {
		users = []model.User{}
	}
	return users, nil
}

// IncidentReport is an administrator's complaint about a bid
type IncidentReport struct {
	ReportedUserID string
	ProductID      string
	ProductTitle   string
	BidAmount      decimal.Decimal
	Reason         string
}

// ReportIncident records an unresolved incident against a user
func (s *Service) ReportIncident(ctx context.Context, caller model.Caller, r IncidentReport) (model.Result, error) {
	if err := s.auth.RequireAdmin(ctx, caller); err != nil {
		return model.Result{}, err
	}
	if r.ReportedUserID == "" || r.ProductID == "" || !r.BidAmount.IsPositive() || !model.ValidAmount(r.BidAmount) || r.Reason == "" {
		return model.Result{}, biddingerrors.New(biddingerrors.InvalidArgument, "reported user, product, bid amount and reason are required")
	}

	title := r.ProductTitle
	if title == "" {
		title = "N/A"
	}
	incident := model.Incident{
		IncidentID:     utils.GenerateID(),
		ReportedUserID: r.ReportedUserID,
		ProductID:      r.ProductID,
		ProductTitle:   title,
		BidAmount:      r.BidAmount,
		Reason:         r.Reason,
		Status:         IncidentUnresolved,
		ReportedAt:     s.now().UTC(),
	}
	if err := s.dir.SaveIncident(ctx, incident); err != nil {
		return model.Result{}, internal("failed to save incident", err, map[string]any{"reported_user_id": r.ReportedUserID})
	}

	return model.Result{Success: true, Message: "Incident reported."}, nil
}

// ScreenRegistration rejects a new account whose phone number is banned
func (s *Service) ScreenRegistration(ctx context.Context, phone string) error {
	if phone == "" {
		return nil
	}

	banned, err := s.dir.IsPhoneBanned(ctx, phone)
	if err != nil {
		return internal("failed to screen registration", err, nil)
	}
	if banned {
		utils.Info("registration blocked for banned phone", nil)
		return biddingerrors.New(biddingerrors.InvalidArgument, "this phone number has been suspended")
	}
	return nil
}

func internal(message string, err error, fields map[string]any) error {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["error"] = err.Error()
	utils.Error(message, fields)
	return biddingerrors.Wrap(err, message)
}
