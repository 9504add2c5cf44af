package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseUsername(t *testing.T) {
	cases := []struct {
		name, email, want string
	}{
		{"Bob Smith", "bob@x.com", "bobsmith"},
		{"Zoë O'Neil", "z@x.com", "zooneil"},
		{"李", "li.wei@x.com", "liwei"},
		{"", "x@x.com", "user"},
		{"A Very Long Display Name Indeed", "a@x.com", "averylongdisplayname"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, BaseUsername(tc.name, tc.email), tc.name)
	}
}

func takenSet(names ...string) func(context.Context, string) (bool, error) {
	set := map[string]bool{}
	for _, n := range names {
		set[n] = true
	}
	return func(_ context.Context, s string) (bool, error) { return set[s], nil }
}

func TestAvailableUsername_ProbesSequentially(t *testing.T) {
	ctx := context.Background()

	got, err := AvailableUsername(ctx, "bobsmith", takenSet())
	require.NoError(t, err)
	assert.Equal(t, "bobsmith", got)

	got, err = AvailableUsername(ctx, "bobsmith", takenSet("bobsmith"))
	require.NoError(t, err)
	assert.Equal(t, "bobsmith1", got)

	got, err = AvailableUsername(ctx, "bobsmith", takenSet("bobsmith", "bobsmith1", "bobsmith2"))
	require.NoError(t, err)
	assert.Equal(t, "bobsmith3", got)
}

func TestAvailableUsername_KeepsSuffixWithinLimit(t *testing.T) {
	base := strings.Repeat("a", 20)
	got, err := AvailableUsername(context.Background(), base, takenSet(base))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 19)+"1", got)
	assert.Len(t, got, 20)
}

func TestAvailableUsername_PropagatesStoreError(t *testing.T) {
	boom := errors.New("db down")
	_, err := AvailableUsername(context.Background(), "bob", func(context.Context, string) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}
