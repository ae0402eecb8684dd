package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestDispatchOrder(t *testing.T) {
	m := NewManager(nil)
	var calls []string

	m.On(ClientBeforeCapture, func(e *Event) { calls = append(calls, "first:"+e.Name) })
	m.On(ClientBeforeCapture, func(e *Event) { calls = append(calls, "second") })
	m.On(ClientAfterCapture, func(e *Event) { calls = append(calls, "after") })

	event := m.Dispatch(context.Background(), ClientBeforeCapture, "subject", nil)

	assert.Equal(t, []string{"first:" + ClientBeforeCapture, "second"}, calls)
	assert.Equal(t, "subject", event.Subject)
	assert.NotNil(t, event.Data)
	assert.Equal(t, 2, m.Listeners(ClientBeforeCapture))
}

func TestListenersSeeData(t *testing.T) {
	m := NewManager(nil)
	var got any
	m.On(ClientAfterCapture, func(e *Event) { got = e.Get("lastEventId") })

	m.Dispatch(context.Background(), ClientAfterCapture, nil, map[string]any{"lastEventId": "abc"})
	assert.Equal(t, "abc", got)
}

func TestOff(t *testing.T) {
	m := NewManager(nil)
	var calls []int

	first := m.On(ClientAfterSetup, func(*Event) { calls = append(calls, 1) })
	m.On(ClientAfterSetup, func(*Event) { calls = append(calls, 2) })
	third := m.On(ClientAfterSetup, func(*Event) { calls = append(calls, 3) })

	m.Off(first)
	m.Off(999)
	m.Dispatch(context.Background(), ClientAfterSetup, nil, nil)
	assert.Equal(t, []int{2, 3}, calls)

	m.Off(third)
	assert.Equal(t, 1, m.Listeners(ClientAfterSetup))
	assert.Zero(t, m.On(ClientAfterSetup, nil))
}

func TestPanickingListener(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	m := NewManager(zap.New(core))
	ran := false

	m.On(ClientBeforeCapture, func(*Event) { panic("listener failed") })
	m.On(ClientBeforeCapture, func(*Event) { ran = true })

	require.NotPanics(t, func() {
		m.Dispatch(context.Background(), ClientBeforeCapture, nil, nil)
	})
	assert.True(t, ran)
	assert.Equal(t, 1, logs.FilterMessage("Event listener panicked").Len())
}

func TestNilManager(t *testing.T) {
	var m *Manager
	event := m.Dispatch(context.Background(), ClientAfterSetup, nil, nil)
	assert.Equal(t, ClientAfterSetup, event.Name)
	assert.Zero(t, m.Listeners(ClientAfterSetup))
}
