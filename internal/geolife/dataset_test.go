package geolife

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestDatasetEnumeratesUsersAndActivities(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "000", "Trajectory", "20081023025304.plt"), trajectoryHeader)
	writeFile(t, filepath.Join(root, "000", "Trajectory", "20081024020959.plt"), trajectoryHeader)
	writeFile(t, filepath.Join(root, "010", "Trajectory", "20070804033032.plt"), trajectoryHeader)
	writeFile(t, filepath.Join(root, "010", "labels.txt"), "")
	writeFile(t, filepath.Join(root, "README.txt"), "not a user")

	ds := NewDataset(root, map[string]bool{"010": true})

	var users []User
	it := ds.Users()
	for it.Next() {
		users = append(users, it.User())
	}
	require.NoError(t, it.Err())
	require.Len(t, users, 2)
	require.Equal(t, "000", users[0].ID)
	require.False(t, users[0].HasLabels)
	require.Equal(t, "010", users[1].ID)
	require.True(t, users[1].HasLabels)
	require.Equal(t, filepath.Join(root, "010", "labels.txt"), LabelPath(users[1]))

	var seqs []string
	ai := ds.Activities(users[0])
	for ai.Next() {
		f := ai.File()
		require.Equal(t, "000", f.UserID)
		seqs = append(seqs, f.Seq)
	}
	require.NoError(t, ai.Err())
	require.Equal(t, []string{"20081023025304", "20081024020959"}, seqs)

	// restartable
	again := ds.Users()
	count := 0
	for again.Next() {
		count++
	}
	require.Equal(t, 2, count)
}

func TestDatasetMissingDirectories(t *testing.T) {
	ds := NewDataset(filepath.Join(t.TempDir(), "missing"), nil)
	it := ds.Users()
	require.False(t, it.Next())
	require.Error(t, it.Err())

	ai := ds.Activities(User{ID: "000", SourcePath: t.TempDir()})
	require.False(t, ai.Next())
	require.Error(t, ai.Err())
}
