package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingPublisher(t *testing.T) {
	p := NewRecordingPublisher()
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, NewTestEvent("a.happened", "1"), NewTestEvent("b.happened", "2")))
	assert.Len(t, p.Events(), 2)
	assert.Len(t, p.EventsOfType("a.happened"), 1)

	p.SetError(assert.AnError)
	assert.ErrorIs(t, p.Publish(ctx, NewTestEvent("a.happened", "3")), assert.AnError)
	assert.Len(t, p.Events(), 2)
}

func TestMockEventHandler(t *testing.T) {
	h := NewMockEventHandler("TestEvent")
	assert.Equal(t, []string{"TestEvent"}, h.EventTypes())

	event := NewTestEvent("TestEvent", "agg-1")
	require.NoError(t, h.Handle(context.Background(), event))
	assert.Equal(t, 1, h.HandledCount())
	assert.Equal(t, "agg-1", h.Handled()[0].AggregateID())

	h.SetError(assert.AnError)
	assert.Equal(t, assert.AnError, h.Handle(context.Background(), event))
}
