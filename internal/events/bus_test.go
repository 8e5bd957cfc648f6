package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishDeliversByType(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var got []*Event
	unsubscribe := bus.Subscribe(JobRunFinished, func(e *Event) {
		got = append(got, e)
	})
	var errs int
	bus.Subscribe(ErrorOccurred, func(*Event) { errs++ })

	bus.Publish("scheduler", &JobRunFinishedData{RunID: "r1", Job: "chat_auto_assign", Updated: 2})

	require.Len(t, got, 1)
	assert.Equal(t, JobRunFinished, got[0].Type)
	assert.Equal(t, "scheduler", got[0].Module)
	assert.False(t, got[0].Timestamp.IsZero())
	data, ok := got[0].Data.(*JobRunFinishedData)
	require.True(t, ok)
	assert.Equal(t, "r1", data.RunID)
	assert.Equal(t, 0, errs)

	unsubscribe()
	assert.Equal(t, 0, bus.Subscribers(JobRunFinished))
	bus.Publish("scheduler", &JobRunFinishedData{RunID: "r2"})
	assert.Len(t, got, 1)
}

func TestBus_HandlerPanicDoesNotStopDelivery(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	bus.Subscribe(JobRunFinished, func(*Event) { panic("boom") })
	delivered := false
	bus.Subscribe(JobRunFinished, func(*Event) { delivered = true })

	assert.NotPanics(t, func() {
		bus.Publish("scheduler", &JobRunFinishedData{RunID: "r1"})
	})
	assert.True(t, delivered)
}

func TestBus_UnsubscribeKeepsOthers(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var calls []string
	first := bus.Subscribe(ErrorOccurred, func(*Event) { calls = append(calls, "first") })
	bus.Subscribe(ErrorOccurred, func(*Event) { calls = append(calls, "second") })

	first()
	first()
	bus.Publish("server", &ErrorEventData{Error: "x"})
	assert.Equal(t, []string{"second"}, calls)
}
