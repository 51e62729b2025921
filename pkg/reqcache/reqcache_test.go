package reqcache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoLoadsOncePerStore(t *testing.T) {
	ctx := WithStore(context.Background())
	calls := 0
	load := func(context.Context) (string, error) {
		calls++
		return "assessment-1", nil
	}

	for i := 0; i < 3; i++ {
		v, err := Memo(ctx, "assessment:1", load)
		require.NoError(t, err)
		assert.Equal(t, "assessment-1", v)
	}
	assert.Equal(t, 1, calls)

	Forget(ctx, "assessment:1")
	_, err := Memo(ctx, "assessment:1", load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestMemoWithoutStore(t *testing.T) {
	calls := 0
	load := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}
	a, _ := Memo(context.Background(), "k", load)
	b, _ := Memo(context.Background(), "k", load)
	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
	Forget(context.Background(), "k")
}

func TestMemoCachesErrors(t *testing.T) {
	ctx := WithStore(context.Background())
	boom := errors.New("boom")
	calls := 0
	load := func(context.Context) (*int, error) {
		calls++
		return nil, boom
	}
	_, err := Memo(ctx, "k", load)
	require.ErrorIs(t, err, boom)
	_, err = Memo(ctx, "k", load)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestStoresAreIsolated(t *testing.T) {
	first := WithStore(context.Background())
	second := WithStore(context.Background())
	_, _ = Memo(first, "k", func(context.Context) (string, error) { return "a", nil })
	v, _ := Memo(second, "k", func(context.Context) (string, error) { return "b", nil })
	assert.Equal(t, "b", v)
}
