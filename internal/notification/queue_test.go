package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"

	"auction-engine/internal/bg"
	"auction-engine/internal/repository"
)

func TestInlineQueue_DetachesFromCallerContext(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryRepo()
	repo.RegisterDeviceToken("u1", "t1")

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sender := NewMockPushSender(ctrl)
	sender.EXPECT().SendMulticast(gomock.Any(), []string{"t1"}, gomock.Any()).
		DoAndReturn(func(ctx context.Context, tokens []string, _ Message) ([]SendResult, error) {
			require.NoError(t, ctx.Err(), "dispatch must outlive the request context")
			_, hasDeadline := ctx.Deadline()
			require.True(t, hasDeadline)
			return []SendResult{{Token: tokens[0]}}, nil
		})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := NewInlineQueue(NewDispatcher(repo, sender), bg.Sync{}, time.Second)
	q.Enqueue(ctx, Request{UserID: "u1", Message: Outbid("p1", "Lamp")})
}

type fakePublisher struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
}

func (f *fakePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func TestAMQPQueue_Enqueue(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	q := NewAMQPQueue(pub, "auction.notifications", "notification.push")
	req := Request{UserID: "u1", Message: AuctionWon("p1", "Lamp")}

	q.Enqueue(context.Background(), req)

	require.Equal(t, "auction.notifications", pub.exchange)
	require.Equal(t, "notification.push", pub.key)
	require.Equal(t, "application/json", pub.msg.ContentType)
	require.Equal(t, amqp.Persistent, pub.msg.DeliveryMode)

	var got Request
	require.NoError(t, json.Unmarshal(pub.msg.Body, &got))
	require.Equal(t, req, got)
}

func TestAMQPQueue_Enqueue_PublishErrorIsSwallowed(t *testing.T) {
	t.Parallel()

	q := NewAMQPQueue(&fakePublisher{err: errors.New("channel closed")}, "x", "y")
	require.NotPanics(t, func() {
		q.Enqueue(context.Background(), Request{UserID: "u1"})
	})
}

type fakeAcknowledger struct {
	acked  int
	nacked int
}

func (f *fakeAcknowledger) Ack(uint64, bool) error        { f.acked++; return nil }
func (f *fakeAcknowledger) Nack(uint64, bool, bool) error { f.nacked++; return nil }
func (f *fakeAcknowledger) Reject(uint64, bool) error     { f.nacked++; return nil }

func TestConsumer_Handle(t *testing.T) {
	t.Parallel()

	valid, err := json.Marshal(Request{UserID: "u1", Message: Outbid("p1", "Lamp")})
	require.NoError(t, err)

	tests := []struct {
		name     string
		body     []byte
		wantSend bool
	}{
		{name: "dispatches valid request", body: valid, wantSend: true},
		{name: "acks malformed body", body: []byte("{not json")},
		{name: "acks request without recipient", body: []byte(`{"message":{"title":"x"}}`)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			repo := repository.NewMemoryRepo()
			repo.RegisterDeviceToken("u1", "t1")

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			sender := NewMockPushSender(ctrl)
			if tc.wantSend {
				sender.EXPECT().SendMulticast(gomock.Any(), []string{"t1"}, Outbid("p1", "Lamp")).
					Return([]SendResult{{Token: "t1"}}, nil)
			}

			ack := &fakeAcknowledger{}
			c := NewConsumer(NewDispatcher(repo, sender), time.Second)
			c.Handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: tc.body})

			require.Equal(t, 1, ack.acked)
			require.Zero(t, ack.nacked)
		})
	}
}
