package watch

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Block-Logic/ping-thing-client/internal/domain/model"
	"github.com/Block-Logic/ping-thing-client/internal/freshness"
)

// scriptedSubscription replays a fixed sequence of events. A nil entry
// simulates silence by waiting out the caller's Recv deadline.
type scriptedSubscription struct {
	events       []subEvent
	idx          int
	unsubscribed bool
}

type subEvent struct {
	upd    *model.SlotUpdate
	err    error
	silent bool
}

func (s *scriptedSubscription) Recv(ctx context.Context) (model.SlotUpdate, error) {
	if s.idx >= len(s.events) {
		<-ctx.Done()
		return model.SlotUpdate{}, ctx.Err()
	}
	ev := s.events[s.idx]
	s.idx++
	if ev.silent {
		<-ctx.Done()
		return model.SlotUpdate{}, ctx.Err()
	}
	if ev.err != nil {
		return model.SlotUpdate{}, ev.err
	}
	return *ev.upd, nil
}

func (s *scriptedSubscription) Unsubscribe() { s.unsubscribed = true }

type scriptedFeed struct {
	subs []*scriptedSubscription
	errs []error
	dial int
}

func (f *scriptedFeed) Subscribe(ctx context.Context) (Subscription, error) {
	i := f.dial
	f.dial++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.subs) {
		return f.subs[i], nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func firstShred(slot uint64) subEvent {
	return subEvent{upd: &model.SlotUpdate{Slot: slot, Type: model.SlotUpdateFirstShredReceived}}
}

func newPositionWatcherForTest(feed PositionFeed, cell *freshness.Value[uint64], cfg PositionConfig) *PositionWatcher {
	if cfg.SilenceWindow == 0 {
		cfg.SilenceWindow = 20 * time.Millisecond
	}
	w := NewPositionWatcher(feed, cell, cfg, slog.Default())
	w.sleepFn = noSleep
	return w
}

func TestPositionWatcherTracksFirstShred(t *testing.T) {
	cell := freshness.New[uint64]()
	sub := &scriptedSubscription{events: []subEvent{
		firstShred(100),
		firstShred(101),
	}}
	feed := &scriptedFeed{subs: []*scriptedSubscription{sub}}
	w := newPositionWatcherForTest(feed, cell, PositionConfig{})

	err := w.consume(context.Background())
	require.ErrorIs(t, err, errSilence, "script end shows up as silence")

	slot, ok, _ := cell.Read()
	require.True(t, ok)
	assert.Equal(t, uint64(101), slot)
	assert.True(t, sub.unsubscribed)
}

func TestPositionWatcherIgnoredSubtypeInvalidates(t *testing.T) {
	cell := freshness.New[uint64]()
	sub := &scriptedSubscription{events: []subEvent{
		firstShred(100),
		{upd: &model.SlotUpdate{Slot: 100, Type: model.SlotUpdateFrozen}},
	}}
	feed := &scriptedFeed{subs: []*scriptedSubscription{sub}}
	w := newPositionWatcherForTest(feed, cell, PositionConfig{})

	err := w.consume(context.Background())
	require.ErrorIs(t, err, errSilence)

	_, ok, _ := cell.Read()
	assert.False(t, ok, "an untracked subtype must clear the slot edge")
	assert.Equal(t, 1, w.budget.Count())
}

func TestPositionWatcherTrackCompleted(t *testing.T) {
	cell := freshness.New[uint64]()
	sub := &scriptedSubscription{events: []subEvent{
		{upd: &model.SlotUpdate{Slot: 200, Type: model.SlotUpdateCompleted}},
	}}
	feed := &scriptedFeed{subs: []*scriptedSubscription{sub}}
	w := newPositionWatcherForTest(feed, cell, PositionConfig{TrackCompleted: true})

	err := w.consume(context.Background())
	require.ErrorIs(t, err, errSilence)

	slot, ok, _ := cell.Read()
	require.True(t, ok)
	assert.Equal(t, uint64(200), slot)
}

func TestPositionWatcherStreamErrorInvalidates(t *testing.T) {
	cell := freshness.New[uint64]()
	sub := &scriptedSubscription{events: []subEvent{
		firstShred(100),
		{err: errors.New("websocket: close 1006")},
	}}
	feed := &scriptedFeed{subs: []*scriptedSubscription{sub}}
	w := newPositionWatcherForTest(feed, cell, PositionConfig{})

	err := w.consume(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, errSilence)

	_, ok, _ := cell.Read()
	assert.False(t, ok)
	assert.Equal(t, 1, w.budget.Count())
}

func TestPositionWatcherSubscribeErrorCountsTowardCeiling(t *testing.T) {
	cell := freshness.New[uint64]()
	feed := &scriptedFeed{errs: []error{
		errors.New("dial refused"),
		errors.New("dial refused"),
	}}
	w := newPositionWatcherForTest(feed, cell, PositionConfig{FailureCeiling: 2})

	err := w.Run(context.Background())
	require.ErrorIs(t, err, ErrBudgetExhausted)
	assert.Equal(t, 2, w.budget.Count())
}

func TestPositionWatcherResubscribesAfterSilence(t *testing.T) {
	cell := freshness.New[uint64]()
	first := &scriptedSubscription{events: []subEvent{
		firstShred(100),
		{silent: true},
	}}
	second := &scriptedSubscription{events: []subEvent{
		firstShred(105),
	}}
	feed := &scriptedFeed{subs: []*scriptedSubscription{first, second}}
	w := newPositionWatcherForTest(feed, cell, PositionConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = w.Run(ctx)

	assert.GreaterOrEqual(t, feed.dial, 2, "silence must trigger a fresh subscription")
	slot, ok, _ := cell.Read()
	require.True(t, ok)
	assert.Equal(t, uint64(105), slot)
	assert.True(t, first.unsubscribed)
}

func TestPositionWatcherStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cell := freshness.New[uint64]()
	feed := &scriptedFeed{}
	w := newPositionWatcherForTest(feed, cell, PositionConfig{})

	err := w.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
