package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLifetime(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   int64
		want time.Duration
		ok   bool
	}{
		{in: 3600, want: time.Hour, ok: true},
		{in: MaxExpiresIn, want: time.Duration(MaxExpiresIn) * time.Second, ok: true},
		{in: MaxExpiresIn + 1},
		{in: 10_000_000_000},
		{in: 0},
		{in: -1},
	}
	for _, c := range cases {
		got, ok := Lifetime(c.in)
		require.Equal(t, c.ok, ok, "expires_in %d", c.in)
		require.Equal(t, c.want, got, "expires_in %d", c.in)
		if ok {
			require.Positive(t, got)
		}
	}
}
