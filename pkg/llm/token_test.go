package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenHolder_FetchesOnFirstCall(t *testing.T) {
	calls := 0
	holder := NewTokenHolder(func(ctx context.Context) (string, time.Time, error) {
		calls++
		return "tok-1", time.Now().Add(time.Hour), nil
	})

	tok, err := holder.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, 1, calls)
}

func TestTokenHolder_ReusesUnexpiredToken(t *testing.T) {
	calls := 0
	holder := NewTokenHolder(func(ctx context.Context) (string, time.Time, error) {
		calls++
		return "tok-1", time.Now().Add(time.Hour), nil
	})

	_, _ = holder.Token(context.Background())
	_, _ = holder.Token(context.Background())
	assert.Equal(t, 1, calls)
}

func TestTokenHolder_RefreshesWithinMargin(t *testing.T) {
	calls := 0
	holder := NewTokenHolder(func(ctx context.Context) (string, time.Time, error) {
		calls++
		return "tok", time.Now().Add(refreshMargin - time.Second), nil
	})

	_, _ = holder.Token(context.Background())
	_, _ = holder.Token(context.Background())
	assert.Equal(t, 2, calls)
}

func TestTokenHolder_ServesStaleOnRefreshFailure(t *testing.T) {
	first := true
	holder := NewTokenHolder(func(ctx context.Context) (string, time.Time, error) {
		if first {
			first = false
			return "tok", time.Now().Add(refreshMargin - time.Second), nil
		}
		return "", time.Time{}, errors.New("refresh failed")
	})

	tok1, err := holder.Token(context.Background())
	require.NoError(t, err)
	tok2, err := holder.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tok1, tok2)
}

func TestTokenHolder_ErrorsWhenNeverFetched(t *testing.T) {
	holder := NewTokenHolder(func(ctx context.Context) (string, time.Time, error) {
		return "", time.Time{}, errors.New("boom")
	})
	_, err := holder.Token(context.Background())
	assert.Error(t, err)
}

func TestStaticTokenSource(t *testing.T) {
	src := StaticTokenSource("abc")
	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
}
