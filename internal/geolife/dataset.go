package geolife

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	trajectoryDir = "Trajectory"
	labelFileName = "labels.txt"
)

// Dataset is a GeoLife "Data" directory: one sub-directory per user.
type Dataset struct {
	root    string
	labeled map[string]bool
}

// NewDataset binds a data root and the set of user ids that carry labels.
func NewDataset(root string, labeled map[string]bool) *Dataset {
	if labeled == nil {
		labeled = map[string]bool{}
	}
	return &Dataset{root: root, labeled: labeled}
}

// ActivityFile is a handle to one trajectory file of a user.
type ActivityFile struct {
	UserID string
	Seq    string
	Path   string
}

// LabelPath returns the location of the user's label table.
func LabelPath(u User) string { return filepath.Join(u.SourcePath, labelFileName) }

// Users returns a fresh iterator over user directories. Each call restarts the enumeration.
func (d *Dataset) Users() *UserIter {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return &UserIter{err: fmt.Errorf("read data dir: %w", err)}
	}
	return &UserIter{ds: d, entries: entries}
}

// UserIter yields users one at a time, rows.Next style.
type UserIter struct {
	ds      *Dataset
	entries []os.DirEntry
	idx     int
	cur     User
	err     error
}

func (it *UserIter) Next() bool {
	if it.err != nil {
		return false
	}
	for it.idx < len(it.entries) {
		e := it.entries[it.idx]
		it.idx++
		if !e.IsDir() {
			continue
		}
		it.cur = User{
			ID:         e.Name(),
			HasLabels:  it.ds.labeled[e.Name()],
			SourcePath: filepath.Join(it.ds.root, e.Name()),
		}
		return true
	}
	return false
}

func (it *UserIter) User() User { return it.cur }
func (it *UserIter) Err() error { return it.err }

// Activities returns a fresh iterator over the user's trajectory files.
func (d *Dataset) Activities(u User) *ActivityIter {
	entries, err := os.ReadDir(filepath.Join(u.SourcePath, trajectoryDir))
	if err != nil {
		return &ActivityIter{err: fmt.Errorf("read trajectories of user %s: %w", u.ID, err)}
	}
	return &ActivityIter{user: u, entries: entries}
}

type ActivityIter struct {
	user    User
	entries []os.DirEntry
	idx     int
	cur     ActivityFile
	err     error
}

func (it *ActivityIter) Next() bool {
	if it.err != nil {
		return false
	}
	for it.idx < len(it.entries) {
		e := it.entries[it.idx]
		it.idx++
		if e.IsDir() {
			continue
		}
		name := e.Name()
		it.cur = ActivityFile{
			UserID: it.user.ID,
			Seq:    strings.TrimSuffix(name, filepath.Ext(name)),
			Path:   filepath.Join(it.user.SourcePath, trajectoryDir, name),
		}
		return true
	}
	return false
}

func (it *ActivityIter) File() ActivityFile { return it.cur }
func (it *ActivityIter) Err() error         { return it.err }
