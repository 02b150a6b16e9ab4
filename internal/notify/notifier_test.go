package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	name   string
	events []string
	titles []string
	err    error
}

func (r *recordingSender) Send(_ context.Context, event, title, _ string) error {
	r.events = append(r.events, event)
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_DispatchesToAllSenders(t *testing.T) {
	a := &recordingSender{name: "a"}
	b := &recordingSender{name: "b"}
	n := NewNotifier([]Sender{a, b}, nil, 0, discard())

	require.NoError(t, n.Notify(context.Background(), EventRiskWarning, "Risk high", "details"))
	assert.Equal(t, []string{"Risk high"}, a.titles)
	assert.Equal(t, []string{"Risk high"}, b.titles)
	assert.Equal(t, []string{EventRiskWarning}, a.events)
}

func TestNotifier_EventFilter(t *testing.T) {
	s := &recordingSender{name: "a"}
	n := NewNotifier([]Sender{s}, []string{EventStopLossTriggered}, 0, discard())

	require.NoError(t, n.Notify(context.Background(), EventRebalance, "Rebalanced", "x"))
	assert.Empty(t, s.titles)

	require.NoError(t, n.Notify(context.Background(), EventStopLossTriggered, "Stopped out", "x"))
	assert.Equal(t, []string{"Stopped out"}, s.titles)
}

func TestNotifier_CooldownSuppressesRepeats(t *testing.T) {
	s := &recordingSender{name: "a"}
	n := NewNotifier([]Sender{s}, nil, time.Minute, discard())

	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return now }

	require.NoError(t, n.Notify(context.Background(), EventRiskWarning, "Risk high", "cycle 1"))
	require.NoError(t, n.Notify(context.Background(), EventRiskWarning, "Risk high", "cycle 2"))
	assert.Len(t, s.titles, 1)

	// A different title is a different alert.
	require.NoError(t, n.Notify(context.Background(), EventRiskWarning, "Drawdown", "x"))
	assert.Len(t, s.titles, 2)

	// Past the window the alert fires again.
	now = now.Add(2 * time.Minute)
	require.NoError(t, n.Notify(context.Background(), EventRiskWarning, "Risk high", "cycle 3"))
	assert.Len(t, s.titles, 3)
}

func TestNotifier_NotifyAllBypassesFilterAndCooldown(t *testing.T) {
	s := &recordingSender{name: "a"}
	n := NewNotifier([]Sender{s}, []string{EventStopLossTriggered}, time.Hour, discard())

	require.NoError(t, n.NotifyAll(context.Background(), "Engine started", "x"))
	require.NoError(t, n.NotifyAll(context.Background(), "Engine started", "x"))
	assert.Len(t, s.titles, 2)
	assert.Equal(t, []string{"", ""}, s.events)
}

func TestNotifier_SenderFailureDoesNotBlockOthers(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, 0, discard())

	err := n.Notify(context.Background(), EventRebalance, "Rebalanced", "x")
	assert.Error(t, err)
	assert.Len(t, good.titles, 1)
}

func TestNotifier_NoSendersIsNoop(t *testing.T) {
	n := NewNotifier(nil, nil, 0, discard())
	assert.NoError(t, n.Notify(context.Background(), EventRiskWarning, "t", "m"))
}
