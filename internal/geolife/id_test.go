package geolife

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActivityID(t *testing.T) {
	id, err := ActivityID("010", "20081023025304")
	require.NoError(t, err)
	require.Equal(t, int64(1020081023025304), id)

	user, seq := SplitActivityID(id)
	require.Equal(t, int64(10), user)
	require.Equal(t, int64(20081023025304), seq)
}

func TestActivityIDNoConcatenationCollisions(t *testing.T) {
	// "1"+"23" and "12"+"3" concatenate to the same digits.
	a, err := ActivityID("23", "1")
	require.NoError(t, err)
	b, err := ActivityID("3", "12")
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	seen := map[int64]string{}
	for _, u := range []string{"0", "1", "12", "123", "181"} {
		for _, s := range []string{"1", "12", "123", "20081023025304", "99999999999999"} {
			id, err := ActivityID(u, s)
			require.NoError(t, err)
			key := u + "/" + s
			prev, dup := seen[id]
			require.False(t, dup, "%s collides with %s", key, prev)
			seen[id] = key
		}
	}
}

func TestActivityIDRejects(t *testing.T) {
	for _, tc := range []struct{ user, seq string }{
		{"abc", "20081023025304"},
		{"-1", "20081023025304"},
		{"010", "2008-10-23"},
		{"010", "200810230253040"},
		{"010", ""},
		{"99999", "1"},
	} {
		_, err := ActivityID(tc.user, tc.seq)
		require.ErrorIs(t, err, ErrInvalidActivityID, "%+v", tc)
	}
}
