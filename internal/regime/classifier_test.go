package regime

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sinkRecorder struct {
	transitions []Transition
}

func (s *sinkRecorder) RecordRegimeTransition(_ context.Context, t Transition) error {
	s.transitions = append(s.transitions, t)
	return nil
}

func newTestClassifier(sink TransitionSink, dwell int, threshold float64) *Classifier {
	return NewClassifier(sink, dwell, threshold, Bull, zerolog.Nop())
}

func TestClassifier_DwellCommit(t *testing.T) {
	sink := &sinkRecorder{}
	c := newTestClassifier(sink, 3, 0.8)
	ctx := context.Background()

	st, err := c.Observe(ctx, Bear, 0.9)
	require.NoError(t, err)
	assert.Equal(t, Bull, st.Label)
	assert.Equal(t, Bear, st.PendingCandidate)
	assert.Equal(t, 1, st.ConfirmationCount)

	st, err = c.Observe(ctx, Bear, 0.9)
	require.NoError(t, err)
	assert.Equal(t, Bull, st.Label)
	assert.Equal(t, 2, st.ConfirmationCount)

	st, err = c.Observe(ctx, Bear, 0.9)
	require.NoError(t, err)
	assert.Equal(t, Bear, st.Label)
	assert.Empty(t, st.PendingCandidate)
	assert.Zero(t, st.ConfirmationCount)

	require.Len(t, sink.transitions, 1)
	assert.Equal(t, Bull, sink.transitions[0].From)
	assert.Equal(t, Bear, sink.transitions[0].To)
	assert.False(t, sink.transitions[0].Manual)
}

func TestClassifier_RevertClearsPending(t *testing.T) {
	c := newTestClassifier(&sinkRecorder{}, 3, 0.8)
	ctx := context.Background()

	_, err := c.Observe(ctx, Bear, 0.9)
	require.NoError(t, err)
	_, err = c.Observe(ctx, Bear, 0.9)
	require.NoError(t, err)

	st, err := c.Observe(ctx, Bull, 0.9)
	require.NoError(t, err)
	assert.Equal(t, Bull, st.Label)
	assert.Empty(t, st.PendingCandidate)
	assert.Zero(t, st.ConfirmationCount)

	// The dwell count restarts from scratch.
	st, err = c.Observe(ctx, Bear, 0.9)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ConfirmationCount)
}

func TestClassifier_CandidateSwitchResetsCount(t *testing.T) {
	c := newTestClassifier(&sinkRecorder{}, 3, 0.8)
	ctx := context.Background()

	_, _ = c.Observe(ctx, Bear, 0.9)
	_, _ = c.Observe(ctx, Bear, 0.9)
	st, err := c.Observe(ctx, Crisis, 0.9)
	require.NoError(t, err)
	assert.Equal(t, Crisis, st.PendingCandidate)
	assert.Equal(t, 1, st.ConfirmationCount)
	assert.Equal(t, Bull, st.Label)
}

func TestClassifier_LowConfidenceAwaitsHuman(t *testing.T) {
	sink := &sinkRecorder{}
	c := newTestClassifier(sink, 2, 0.8)
	ctx := context.Background()

	_, _ = c.Observe(ctx, Crisis, 0.5)
	st, err := c.Observe(ctx, Crisis, 0.5)
	require.NoError(t, err)
	assert.Equal(t, Bull, st.Label)
	assert.True(t, st.AwaitingHuman)
	assert.Equal(t, Crisis, st.PendingCandidate)
	assert.Empty(t, sink.transitions)

	st, err = c.ConfirmPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, Crisis, st.Label)
	assert.False(t, st.AwaitingHuman)
	require.Len(t, sink.transitions, 1)
	assert.True(t, sink.transitions[0].Manual)
}

func TestClassifier_ConfirmWithoutPending(t *testing.T) {
	c := newTestClassifier(&sinkRecorder{}, 2, 0.8)
	_, err := c.ConfirmPending(context.Background())
	assert.Error(t, err)
}

func TestClassifier_InvalidLabel(t *testing.T) {
	c := newTestClassifier(&sinkRecorder{}, 2, 0.8)
	_, err := c.Observe(context.Background(), Label("SSHAPED"), 0.9)
	assert.Error(t, err)
}

func TestClassifier_Restore(t *testing.T) {
	c := newTestClassifier(&sinkRecorder{}, 2, 0.8)
	c.Restore(HighVol, 0.7)
	st := c.State()
	assert.Equal(t, HighVol, st.Label)
	assert.Equal(t, 0.7, st.Confidence)
	assert.Empty(t, st.PendingCandidate)
}
