package notify

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/orgdir/internal/models"
)

func TestHubDeliversToTargetOnly(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(4)

	alice := uuid.Must(uuid.NewV7())
	bob := uuid.Must(uuid.NewV7())
	org := uuid.Must(uuid.NewV7())

	aliceCh, cancelAlice := hub.Subscribe(alice)
	defer cancelAlice()
	bobCh, cancelBob := hub.Subscribe(bob)
	defer cancelBob()

	ev := Event{Type: EventTransferInitiated, TransferID: uuid.Must(uuid.NewV7()), Status: models.TransferPending}
	require.NoError(t, hub.EmitTransferEvent(ctx, org, alice, ev, bob))

	select {
	case got := <-aliceCh:
		require.Equal(t, EventTransferInitiated, got.Type)
		require.Equal(t, org, got.OrgID)
		require.Equal(t, alice, got.TargetUserID)
		require.Equal(t, bob, got.ActorID)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	select {
	case got := <-bobCh:
		t.Fatalf("unexpected event for bob: %+v", got)
	default:
	}
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(1)
	user := uuid.Must(uuid.NewV7())

	ch, cancel := hub.Subscribe(user)
	defer cancel()

	for i := 0; i < 3; i++ {
		require.NoError(t, hub.EmitTransferEvent(ctx, uuid.Nil, user, Event{Type: EventTransferExpired}, uuid.Nil))
	}

	require.Len(t, ch, 1)
}

func TestHubCancel(t *testing.T) {
	hub := NewHub(0)
	user := uuid.Must(uuid.NewV7())

	ch, cancel := hub.Subscribe(user)
	require.Equal(t, 1, hub.Subscribers(user))

	cancel()
	cancel()
	require.Equal(t, 0, hub.Subscribers(user))

	_, open := <-ch
	require.False(t, open)

	// Emitting with no subscribers is a no-op.
	require.NoError(t, hub.EmitTransferEvent(context.Background(), uuid.Nil, user, Event{}, uuid.Nil))
}

func TestEventType(t *testing.T) {
	require.Equal(t, EventTransferInitiated, EventType(models.TransferPending))
	require.Equal(t, EventTransferAccepted, EventType(models.TransferAccepted))
	require.Equal(t, EventTransferRejected, EventType(models.TransferRejected))
	require.Equal(t, EventTransferCancelled, EventType(models.TransferCancelled))
	require.Equal(t, EventTransferExpired, EventType(models.TransferExpired))
	require.Panics(t, func() { EventType(models.TransferStatus(42)) })
}

func TestDispatcherRunsAndWaits(t *testing.T) {
	d := NewDispatcher(time.Second)

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		d.Go(context.Background(), "count", func(ctx context.Context) error {
			ran.Add(1)
			return nil
		})
	}

	d.Wait()
	require.Equal(t, int32(5), ran.Load())
}

func TestDispatcherSurvivesErrorsAndPanics(t *testing.T) {
	d := NewDispatcher(time.Second)

	var after atomic.Bool
	d.Go(context.Background(), "fails", func(ctx context.Context) error {
		return errors.New("smtp unavailable")
	})
	d.Go(context.Background(), "panics", func(ctx context.Context) error {
		panic("boom")
	})
	d.Go(context.Background(), "after", func(ctx context.Context) error {
		after.Store(true)
		return nil
	})

	d.Wait()
	require.True(t, after.Load())
}

func TestDispatcherDetachesFromCallerCancellation(t *testing.T) {
	d := NewDispatcher(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})

	var hookErr atomic.Value
	d.Go(ctx, "detached", func(ctx context.Context) error {
		<-release
		if err := ctx.Err(); err != nil {
			hookErr.Store(err)
		}
		return nil
	})

	cancel()
	close(release)
	d.Wait()

	require.Nil(t, hookErr.Load())
}

func TestLogMailer(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogMailer(zerolog.New(&buf))

	n := Notice{
		TransferID: uuid.Must(uuid.NewV7()),
		OrgID:      uuid.Must(uuid.NewV7()),
		OrgName:    "Acme",
		FromName:   "Alice",
		ToName:     "Bob",
	}

	ctx := context.Background()
	require.NoError(t, m.NotifyInitiated(ctx, "bob@example.com", n))
	require.NoError(t, m.NotifyAccepted(ctx, "alice@example.com", n))
	require.NoError(t, m.NotifyRejected(ctx, "alice@example.com", n))
	require.NoError(t, m.NotifyCancelled(ctx, "bob@example.com", n))

	out := buf.String()
	require.Contains(t, out, `"to":"bob@example.com"`)
	require.Contains(t, out, "Alice wants to transfer ownership of Acme to you")
	require.Contains(t, out, "Bob accepted ownership of Acme")
	require.Contains(t, out, `"notice":"rejected"`)
	require.Contains(t, out, `"notice":"cancelled"`)
}
