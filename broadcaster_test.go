package auth_test

import (
	"sync"
	"testing"

	"github.com/keysai/go-auth"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestBroadcaster_PublishInOrder(t *testing.T) {
	var b auth.Broadcaster
	var got []string

	b.Subscribe(func(auth.SessionEvent) { got = append(got, "first") })
	b.Subscribe(func(auth.SessionEvent) { got = append(got, "second") })

	b.Publish(auth.SessionEvent{Type: auth.EventSignedIn})

	assert.Equal(t, []string{"first", "second"}, got)
	assert.Equal(t, 2, b.Len())
}

func TestBroadcaster_UnsubscribeOnce(t *testing.T) {
	var b auth.Broadcaster
	calls := 0

	first := b.Subscribe(func(auth.SessionEvent) { calls++ })
	b.Subscribe(func(auth.SessionEvent) {})

	first.Unsubscribe()
	first.Unsubscribe()

	b.Publish(auth.SessionEvent{Type: auth.EventSignedOut})
	assert.Zero(t, calls)
	assert.Equal(t, 1, b.Len())
}

func TestBroadcaster_ListenerCanUnsubscribeDuringPublish(t *testing.T) {
	var b auth.Broadcaster
	var sub auth.Subscription
	calls := 0

	sub = b.Subscribe(func(auth.SessionEvent) {
		calls++
		sub.Unsubscribe()
	})

	b.Publish(auth.SessionEvent{})
	b.Publish(auth.SessionEvent{})

	assert.Equal(t, 1, calls)
	assert.Zero(t, b.Len())
}

func TestBroadcaster_NilListener(t *testing.T) {
	var b auth.Broadcaster
	sub := b.Subscribe(nil)
	sub.Unsubscribe()
	assert.Zero(t, b.Len())
}

func TestBroadcaster_Concurrent(t *testing.T) {
	defer goleak.VerifyNone(t)

	var b auth.Broadcaster
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := b.Subscribe(func(auth.SessionEvent) {})
			b.Publish(auth.SessionEvent{Type: auth.EventTokenRefreshed})
			sub.Unsubscribe()
		}()
	}
	wg.Wait()

	assert.Zero(t, b.Len())
}

func TestSubscriptionFunc(t *testing.T) {
	calls := 0
	sub := auth.SubscriptionFunc(func() { calls++ })
	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 1, calls)

	assert.NotPanics(t, func() { auth.SubscriptionFunc(nil).Unsubscribe() })
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "uninitialized", auth.PhaseUninitialized.String())
	assert.Equal(t, "initializing", auth.PhaseInitializing.String())
	assert.Equal(t, "ready", auth.PhaseReady.String())
	assert.Equal(t, "terminated", auth.PhaseTerminated.String())
}
