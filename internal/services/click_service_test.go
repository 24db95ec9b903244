package services

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axellelanca/locashare/internal/models"
)

func TestClickRecorderDrainsOnStop(t *testing.T) {
	store := newMemLinkStore()
	ctx := context.Background()
	require.NoError(t, store.CreateLink(ctx, &models.Link{ShortCode: "abc", LongURL: "https://example.com"}))

	rec := NewClickRecorder(store, store, 1, 1, StorePolicy{Timeout: time.Second, RetryBackoff: time.Millisecond}, discardLogger())
	rec.Start()
	for i := 0; i < 25; i++ {
		rec.Enqueue(models.ClickEvent{ShortCode: "abc", Timestamp: time.Now()})
	}
	require.NoError(t, rec.Stop(ctx))

	link, err := store.GetLinkByShortCode(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, int64(25), link.Clicks)
	recent, err := store.RecentClicks(ctx, "abc", models.MaxRecentClicks)
	require.NoError(t, err)
	assert.Len(t, recent, 25)
}

func TestClickRecorderDropsAfterStop(t *testing.T) {
	store := newMemLinkStore()
	ctx := context.Background()
	require.NoError(t, store.CreateLink(ctx, &models.Link{ShortCode: "abc", LongURL: "https://example.com"}))

	rec := NewClickRecorder(store, store, 4, 1, StorePolicy{Timeout: time.Second}, discardLogger())
	rec.Start()
	require.NoError(t, rec.Stop(ctx))

	before := testutil.ToFloat64(clicksDroppedTotal)
	rec.Enqueue(models.ClickEvent{ShortCode: "abc", Timestamp: time.Now()})

	link, err := store.GetLinkByShortCode(ctx, "abc")
	require.NoError(t, err)
	assert.Zero(t, link.Clicks)
	assert.Equal(t, before+1, testutil.ToFloat64(clicksDroppedTotal))
}

func TestClickRecorderRetriesTransientFailure(t *testing.T) {
	store := newMemLinkStore()
	ctx := context.Background()
	require.NoError(t, store.CreateLink(ctx, &models.Link{ShortCode: "abc", LongURL: "https://example.com"}))
	store.failNext = 1

	rec := NewClickRecorder(store, store, 10, 1, StorePolicy{Timeout: time.Second, RetryBackoff: time.Millisecond}, discardLogger())
	rec.Start()
	rec.Enqueue(models.ClickEvent{ShortCode: "abc", Timestamp: time.Now()})
	require.NoError(t, rec.Stop(ctx))

	link, err := store.GetLinkByShortCode(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, int64(1), link.Clicks)
}

func TestClickRecorderUnknownCodeIsNotFatal(t *testing.T) {
	store := newMemLinkStore()
	rec := NewClickRecorder(store, store, 10, 2, StorePolicy{}, discardLogger())
	rec.Start()
	rec.Enqueue(models.ClickEvent{ShortCode: "gone", Timestamp: time.Now()})
	assert.NoError(t, rec.Stop(context.Background()))
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	unlockA := km.Lock("a")

	acquired := make(chan struct{})
	go func() {
		unlock := km.Lock("a")
		close(acquired)
		unlock()
	}()

	// other keys are independent
	unlockB := km.Lock("b")
	unlockB()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held key")
	case <-time.After(20 * time.Millisecond):
	}
	unlockA()
	<-acquired
	assert.Eventually(t, func() bool { return km.Len() == 0 }, time.Second, time.Millisecond)
}
