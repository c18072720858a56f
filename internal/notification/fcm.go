package notification

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"auction-engine/internal/config"
)

// NewPushSender builds the sender named by provider
func NewPushSender(ctx context.Context, provider, credentialsFile string) (PushSender, error) {
	switch provider {
	case config.PushFCM:
		return NewFCMSender(ctx, credentialsFile)
	case config.PushLog, "":
		return LogSender{}, nil
	default:
		return nil, fmt.Errorf("notification: unknown push provider %q", provider)
	}
}

// multicastClient is the slice of *messaging.Client the sender uses
type multicastClient interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMSender delivers through Firebase Cloud Messaging
type FCMSender struct {
	client multicastClient
}

// NewFCMSender initializes a Firebase app from a service account file
func NewFCMSender(ctx context.Context, credentialsFile string) (*FCMSender, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("notification: init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("notification: init messaging client: %w", err)
	}
	return &FCMSender{client: client}, nil
}

func (s *FCMSender) SendMulticast(ctx context.Context, tokens []string, msg Message) ([]SendResult, error) {
	resp, err := s.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("notification: fcm multicast: %w", err)
	}

	// responses are positional with the request tokens
	results := make([]SendResult, 0, len(resp.Responses))
	for i, r := range resp.Responses {
		if i >= len(tokens) {
			break
		}
		res := SendResult{Token: tokens[i]}
		if !r.Success {
			res.Err = classifyFCMError(r.Error)
		}
		results = append(results, res)
	}
	return results, nil
}

func classifyFCMError(err error) error {
	switch {
	case err == nil:
		return fmt.Errorf("notification: fcm reported failure without error")
	case messaging.IsUnregistered(err):
		return fmt.Errorf("%w: %v", ErrTokenUnregistered, err)
	case messaging.IsInvalidArgument(err) && isTokenRejection(err):
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	default:
		return err
	}
}

// isTokenRejection separates a malformed registration token from the other
// INVALID_ARGUMENT responses, which are about the payload and keep the token
func isTokenRejection(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "registration token")
}
