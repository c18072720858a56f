// Package notification delivers push messages to a user's devices and prunes
// device tokens the push provider reports as dead.
package notification

//go:generate mockgen -source=notification.go -destination=mock_notification.go -package=notification

import (
	"context"
	"errors"

	"auction-engine/internal/repository"
	"auction-engine/utils"
)

// Per-token failures that mean the token will never work again
var (
	ErrTokenUnregistered = errors.New("registration token not registered")
	ErrTokenInvalid      = errors.New("invalid registration token")
)

// Message is the payload shown on the device
type Message struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Request addresses a message to every device of one user
type Request struct {
	UserID  string  `json:"user_id"`
	Message Message `json:"message"`
}

// SendResult is the provider's verdict for a single token
type SendResult struct {
	Token string
	Err   error
}

// BatchResult summarizes one multicast
type BatchResult struct {
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
	PrunedCount  int `json:"pruned_count"`
}

// PushSender sends one multicast request to a set of device tokens. A non-nil
// error means the whole request failed; per-token outcomes are in the results.
type PushSender interface {
	SendMulticast(ctx context.Context, tokens []string, msg Message) ([]SendResult, error)
}

// Queue takes post-commit notification requests. Enqueue never reports
// failure back to the caller.
type Queue interface {
	Enqueue(ctx context.Context, req Request)
}

// Dispatcher fans a message out to a user's devices
type Dispatcher struct {
	tokens repository.TokenStore
	sender PushSender
}

// NewDispatcher creates a dispatcher that reads and prunes tokens in store
func NewDispatcher(store repository.TokenStore, sender PushSender) *Dispatcher {
	return &Dispatcher{tokens: store, sender: sender}
}

// NotifyUser loads the user's device tokens and dispatches msg to them
func (d *Dispatcher) NotifyUser(ctx context.Context, req Request) BatchResult {
	tokens, err := d.tokens.DeviceTokens(ctx, req.UserID)
	if err != nil {
		utils.Error("failed to load device tokens", map[string]any{
			"user_id": req.UserID,
			"error":   err.Error(),
		})
		return BatchResult{}
	}
	return d.Dispatch(ctx, req.UserID, tokens, req.Message)
}

// Dispatch sends msg to tokens in one multicast. Tokens rejected as
// unregistered or invalid are deleted; other failures are logged and kept.
// It never returns an error.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, tokens []string, msg Message) BatchResult {
	if len(tokens) == 0 {
		utils.Debug("no device tokens, skipping notification", map[string]any{"user_id": userID})
		return BatchResult{}
	}

	results, err := d.sender.SendMulticast(ctx, tokens, msg)
	if err != nil {
		utils.Error("multicast send failed", map[string]any{
			"user_id": userID,
			"tokens":  len(tokens),
			"error":   err.Error(),
		})
		return BatchResult{FailureCount: len(tokens)}
	}

	var res BatchResult
	for _, r := range results {
		if r.Err == nil {
			res.SuccessCount++
			continue
		}
		res.FailureCount++

		if !errors.Is(r.Err, ErrTokenUnregistered) && !errors.Is(r.Err, ErrTokenInvalid) {
			utils.Warn("push delivery failed", map[string]any{
				"user_id": userID,
				"error":   r.Err.Error(),
			})
			continue
		}
		if err := d.tokens.DeleteDeviceToken(ctx, userID, r.Token); err != nil {
			utils.Error("failed to prune device token", map[string]any{
				"user_id": userID,
				"error":   err.Error(),
			})
			continue
		}
		res.PrunedCount++
	}

	utils.Info("notification dispatched", map[string]any{
		"user_id": userID,
		"success": res.SuccessCount,
		"failure": res.FailureCount,
		"pruned":  res.PrunedCount,
	})
	return res
}
