package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rentaldesk/rentals/internal/event"
)

func paidEvent(id int64) event.DomainEvent {
	return event.NewPaymentPaid(event.PaymentPaidPayload{
		PaymentID:     id,
		ContractID:    1,
		Value:         100000,
		PaymentMethod: "pix",
	})
}

func TestBus_DispatchesInOrder(t *testing.T) {
	bus := New(8, zap.NewNop())
	var (
		mu  sync.Mutex
		got []string
	)
	bus.Subscribe("collector", HandlerFunc(func(_ context.Context, evt event.DomainEvent) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, evt.ID)
		return nil
	}))
	bus.Subscribe("failing", HandlerFunc(func(context.Context, event.DomainEvent) error {
		return errors.New("boom")
	}))
	bus.Start(context.Background())

	first, second := paidEvent(1), paidEvent(2)
	bus.Publish(context.Background(), first)
	bus.Publish(context.Background(), second)
	bus.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{first.ID, second.ID}, got)
}

func TestBus_PublishAfterStopIsDropped(t *testing.T) {
	bus := New(1, zap.NewNop())
	bus.Start(context.Background())
	bus.Stop()
	assert.NotPanics(t, func() { bus.Publish(context.Background(), paidEvent(1)) })
	assert.NotPanics(t, bus.Stop)
}

func TestBus_FullBufferDrops(t *testing.T) {
	bus := New(1, zap.NewNop())
	bus.Publish(context.Background(), paidEvent(1))
	bus.Publish(context.Background(), paidEvent(2)) // dropped, not started
	assert.Len(t, bus.queue, 1)
	assert.Equal(t, int64(1), bus.Dropped())
	assert.NotPanics(t, bus.Stop)
}

func TestBus_PanickingConsumerDoesNotStopOthers(t *testing.T) {
	bus := New(4, zap.NewNop())
	var delivered atomic.Int32
	bus.Subscribe("panics", HandlerFunc(func(context.Context, event.DomainEvent) error {
		panic("consumer bug")
	}))
	bus.Subscribe("counter", HandlerFunc(func(context.Context, event.DomainEvent) error {
		delivered.Add(1)
		return nil
	}))
	bus.Start(context.Background())
	bus.Publish(context.Background(), paidEvent(1))
	bus.Publish(context.Background(), paidEvent(2))
	bus.Stop()
	assert.Equal(t, int32(2), delivered.Load())
}

func TestBus_CancelDrainsQueue(t *testing.T) {
	bus := New(4, zap.NewNop())
	var delivered atomic.Int32
	release := make(chan struct{})
	bus.Subscribe("slow", HandlerFunc(func(context.Context, event.DomainEvent) error {
		<-release
		delivered.Add(1)
		return nil
	}))
	ctx, cancel := context.WithCancel(context.Background())
	bus.Start(ctx)
	bus.Publish(ctx, paidEvent(1))
	bus.Publish(ctx, paidEvent(2))
	cancel()
	close(release)
	bus.Stop()
	assert.Equal(t, int32(2), delivered.Load())
}

type fakeChannel struct {
	declared  string
	published []amqp.Publishing
	keys      []string
	closed    bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.declared = name + ":" + kind
	return nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.keys = append(f.keys, exchange+"/"+key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPPublisher_HandleEvent(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newAMQPPublisher(ch, AMQPConfig{Exchange: "rentals.events"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "rentals.events:topic", ch.declared)

	evt := paidEvent(5)
	require.NoError(t, p.HandleEvent(context.Background(), evt))
	require.Len(t, ch.published, 1)
	assert.Equal(t, "rentals.events/rentals.payment_paid", ch.keys[0])
	assert.Equal(t, evt.ID, ch.published[0].MessageId)
	assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)

	var decoded event.DomainEvent
	require.NoError(t, json.Unmarshal(ch.published[0].Body, &decoded))
	assert.Equal(t, event.TypePaymentPaid, decoded.EventType)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestStreamHub_DeliversMatchingCategories(t *testing.T) {
	hub := NewStreamHub(nil, zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?category=payment"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	contractEvt := event.NewContractCreated(event.ContractCreatedPayload{ContractID: 1, Duration: 12})
	payEvt := paidEvent(9)
	require.NoError(t, hub.HandleEvent(ctx, contractEvt))
	require.NoError(t, hub.HandleEvent(ctx, payEvt))

	var got event.DomainEvent
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	assert.Equal(t, payEvt.ID, got.ID)

	conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
