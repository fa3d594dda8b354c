package projector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/projector/pkg/domain"
)

func noopHandler(ctx context.Context, e *domain.Event, state any) (any, error) {
	return state, nil
}

func TestBuilder_WriteOnceEnforcement(t *testing.T) {
	t.Run("InitTwice", func(t *testing.T) {
		b, err := New("p")
		require.NoError(t, err)
		b, err = b.Init(func() (any, error) { return 0, nil })
		require.NoError(t, err)
		_, err = b.Init(func() (any, error) { return 0, nil })
		assert.ErrorIs(t, err, ErrAlreadyInitialized)
	})

	t.Run("FromCalledTwice", func(t *testing.T) {
		b, err := New("p")
		require.NoError(t, err)
		b, err = b.FromAll()
		require.NoError(t, err)
		_, err = b.FromStream("s", nil)
		assert.ErrorIs(t, err, ErrFromAlreadyCalled)

		_, err = b.FromStreams(StreamSpec{Stream: "a"})
		assert.ErrorIs(t, err, ErrFromAlreadyCalled)
	})

	t.Run("WhenCalledTwice", func(t *testing.T) {
		b, err := New("p")
		require.NoError(t, err)
		b, err = b.WhenAny(noopHandler)
		require.NoError(t, err)
		_, err = b.When(map[string]Handler{"A": noopHandler})
		assert.ErrorIs(t, err, ErrWhenAlreadyCalled)
	})
}

func TestBuilder_WhenAndWhenAnyAreMutuallyExclusive(t *testing.T) {
	b, err := New("p")
	require.NoError(t, err)

	b, err = b.When(map[string]Handler{"A": noopHandler})
	require.NoError(t, err)

	_, err = b.WhenAny(noopHandler)
	assert.ErrorIs(t, err, ErrWhenAlreadyCalled)
}

func TestBuilder_InvalidName(t *testing.T) {
	_, err := New("")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestBuilder_BuildFailsPreflightChecks(t *testing.T) {
	t.Run("NoQuery", func(t *testing.T) {
		b, err := New("p")
		require.NoError(t, err)
		b, err = b.Init(func() (any, error) { return 0, nil })
		require.NoError(t, err)
		b, err = b.WhenAny(noopHandler)
		require.NoError(t, err)

		_, err = b.Build(nil, nil, nil, nil, nil)
		assert.ErrorIs(t, err, ErrNoQuery)
	})

	t.Run("NoHandler", func(t *testing.T) {
		b, err := New("p")
		require.NoError(t, err)
		b, err = b.Init(func() (any, error) { return 0, nil })
		require.NoError(t, err)
		b, err = b.FromAll()
		require.NoError(t, err)

		_, err = b.Build(nil, nil, nil, nil, nil)
		assert.ErrorIs(t, err, ErrNoHandler)
	})

	t.Run("NoInit", func(t *testing.T) {
		b, err := New("p")
		require.NoError(t, err)
		b, err = b.FromAll()
		require.NoError(t, err)
		b, err = b.WhenAny(noopHandler)
		require.NoError(t, err)

		_, err = b.Build(nil, nil, nil, nil, nil)
		assert.ErrorIs(t, err, ErrStateNotInitialised)
	})
}
