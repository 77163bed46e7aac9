package buffer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthony-cros/hookup/buffer"
	"github.com/anthony-cros/hookup/envelope"
)

func TestDrainReplaysInFIFOOrder(t *testing.T) {
	b := buffer.NewMemoryBuffer()
	require.NoError(t, b.Open())

	require.NoError(t, b.Write(envelope.TextMessage{Text: "one"}))
	require.NoError(t, b.Write(envelope.TextMessage{Text: "two"}))
	require.NoError(t, b.Write(envelope.TextMessage{Text: "three"}))

	var got []string
	sink := func(_ context.Context, msg envelope.OutMessage) (envelope.Result, error) {
		got = append(got, msg.(envelope.TextMessage).Text)
		return envelope.Success, nil
	}

	require.NoError(t, b.Drain(context.Background(), sink))
	assert.Equal(t, []string{"one", "two", "three"}, got)
	assert.Equal(t, 0, b.Len())
}

func TestDrainStopsAndRequeuesOnSinkError(t *testing.T) {
	b := buffer.NewMemoryBuffer()
	require.NoError(t, b.Open())
	require.NoError(t, b.Write(envelope.TextMessage{Text: "one"}))
	require.NoError(t, b.Write(envelope.TextMessage{Text: "two"}))

	boom := errors.New("boom")
	calls := 0
	sink := func(_ context.Context, msg envelope.OutMessage) (envelope.Result, error) {
		calls++
		return envelope.Failure, boom
	}

	err := b.Drain(context.Background(), sink)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, b.Len(), "the failed entry must be requeued, not dropped")
}

func TestOpenCloseAreIdempotent(t *testing.T) {
	b := buffer.NewMemoryBuffer()
	assert.NoError(t, b.Open())
	assert.NoError(t, b.Open())
	assert.NoError(t, b.Close())
	assert.NoError(t, b.Close())
}

func TestDrainOfEmptyBufferIsNoop(t *testing.T) {
	b := buffer.NewMemoryBuffer()
	called := false
	sink := func(_ context.Context, _ envelope.OutMessage) (envelope.Result, error) {
		called = true
		return envelope.Success, nil
	}
	require.NoError(t, b.Drain(context.Background(), sink))
	assert.False(t, called)
}
