package notification

import (
	"context"

	"auction-engine/utils"
)

// LogSender logs every message instead of delivering it. Used in development.
type LogSender struct{}

func (LogSender) SendMulticast(_ context.Context, tokens []string, msg Message) ([]SendResult, error) {
	utils.Info("push message", map[string]any{
		"tokens": len(tokens),
		"title":  msg.Title,
		"body":   msg.Body,
	})
	results := make([]SendResult, len(tokens))
	for i, t := range tokens {
		results[i] = SendResult{Token: t}
	}
	return results, nil
}
