package projector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/projector/pkg/domain"
)

func TestHandlerRegistry_NamedDispatchPassesThroughUnhandled(t *testing.T) {
	r := handlerRegistry{named: map[string]Handler{
		"A": func(ctx context.Context, e *domain.Event, state any) (any, error) {
			return state.(int) + 1, nil
		},
	}}

	next, handled, err := r.dispatch(context.Background(), &domain.Event{Name: "A"}, 0)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, 1, next)

	next, handled, err = r.dispatch(context.Background(), &domain.Event{Name: "Unrelated"}, 1)
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Equal(t, 1, next, "state must pass through unchanged for an event with no matching handler")
}

func TestHandlerRegistry_WhenAnyAlwaysHandles(t *testing.T) {
	r := handlerRegistry{whenAny: func(ctx context.Context, e *domain.Event, state any) (any, error) {
		return state.(int) + 1, nil
	}}

	_, handled, err := r.dispatch(context.Background(), &domain.Event{Name: "anything"}, 0)
	require.NoError(t, err)
	assert.True(t, handled)
}

func TestHandlerRegistry_IsSet(t *testing.T) {
	assert.False(t, (&handlerRegistry{}).isSet())
	assert.True(t, (&handlerRegistry{whenAny: noopHandler}).isSet())
	assert.True(t, (&handlerRegistry{named: map[string]Handler{"A": noopHandler}}).isSet())
}

func TestHandlerRegistry_PropagatesHandlerError(t *testing.T) {
	boom := assert.AnError
	r := handlerRegistry{whenAny: func(ctx context.Context, e *domain.Event, state any) (any, error) {
		return nil, boom
	}}

	_, handled, err := r.dispatch(context.Background(), &domain.Event{Name: "A"}, 0)
	assert.True(t, handled)
	assert.ErrorIs(t, err, boom)
}
