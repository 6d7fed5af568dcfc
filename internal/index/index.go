// Package index holds the hierarchical path index: a directory tree of
// entry records keyed by (parent id, name), each carrying a dir flag, a
// size and three timestamps. The index is volatile and lives for the
// process, like the rest of the filesystem state.
package index

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/buntdb"

	"github.com/vramfs/vramfs/internal/vram"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrNotExist = errors.New("entry does not exist")
	ErrExist    = errors.New("entry already exists")
	ErrNotDir   = errors.New("entry is not a directory")
	ErrIsDir    = errors.New("entry is a directory")
)

// Filter restricts what kind of entry a lookup may resolve to.
type Filter int

const (
	Any Filter = iota
	DirsOnly
	FilesOnly
)

// Entry is one record in the tree. The root entry has ID 1 and parent 0.
type Entry struct {
	ID     int64  `json:"id"`
	Parent int64  `json:"parent"`
	Name   string `json:"name"`
	Dir    bool   `json:"dir"`
	Size   int64  `json:"size"`
	ATime  int64  `json:"atime"`
	MTime  int64  `json:"mtime"`
	CTime  int64  `json:"ctime"`
}

const (
	rootParent = 0
	rootID     = 1
	seqKey     = "seq"
)

func entryKey(parent int64, name string) string {
	return fmt.Sprintf("e:%d:%s", parent, name)
}

func idKey(id int64) string {
	return fmt.Sprintf("i:%d", id)
}

// Index is an in-memory transactional store of entries.
type Index struct {
	db *buntdb.DB
}

// New creates an index containing only the root directory.
func New() (*Index, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, err
	}
	ix := &Index{db: db}

	root := Entry{
		ID:     rootID,
		Parent: rootParent,
		Name:   "",
		Dir:    true,
		Size:   vram.BlockSize,
	}
	now := time.Now().Unix()
	root.ATime, root.MTime, root.CTime = now, now, now

	err = db.Update(func(tx *buntdb.Tx) error {
		if err := putEntry(tx, root); err != nil {
			return err
		}
		_, _, err := tx.Set(seqKey, strconv.FormatInt(rootID, 10), nil)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return ix, nil
}

func (ix *Index) Close() error {
	return ix.db.Close()
}

// Find resolves path (starting with /) to its entry, walking the tree one
// segment at a time from the root. A file in the middle of the path yields
// ErrNotDir; the filter turns a wrong entry kind at the end into ErrNotDir
// or ErrIsDir.
func (ix *Index) Find(path string, filter Filter) (Entry, error) {
	var entry Entry
	err := ix.db.View(func(tx *buntdb.Tx) error {
		var err error
		entry, err = findTx(tx, path)
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	switch {
	case filter == DirsOnly && !entry.Dir:
		return Entry{}, ErrNotDir
	case filter == FilesOnly && entry.Dir:
		return Entry{}, ErrIsDir
	}
	return entry, nil
}

// List returns the children of the directory at path.
func (ix *Index) List(path string) ([]Entry, error) {
	var children []Entry
	err := ix.db.View(func(tx *buntdb.Tx) error {
		dir, err := findTx(tx, path)
		if err != nil {
			return err
		}
		if !dir.Dir {
			return ErrNotDir
		}
		prefix := fmt.Sprintf("e:%d:", dir.ID)
		return tx.AscendKeys(prefix+"*", func(key, value string) bool {
			var e Entry
			if json.UnmarshalFromString(value, &e) == nil {
				children = append(children, e)
			}
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	return children, nil
}

// Mkdir adds a directory entry at path. The parent must already exist.
func (ix *Index) Mkdir(path string) (Entry, error) {
	return ix.insert(path, true, vram.BlockSize)
}

// Create adds a file entry at path with size zero.
func (ix *Index) Create(path string) (Entry, error) {
	return ix.insert(path, false, 0)
}

// SetSize updates the size attribute of the entry with the given id and
// bumps its modification time.
func (ix *Index) SetSize(id int64, size int64) error {
	return ix.update(id, func(e *Entry) {
		e.Size = size
		e.MTime = time.Now().Unix()
	})
}

// Touch refreshes the access time of the entry with the given id.
func (ix *Index) Touch(id int64) error {
	return ix.update(id, func(e *Entry) {
		e.ATime = time.Now().Unix()
	})
}

// Get returns the entry with the given id.
func (ix *Index) Get(id int64) (Entry, error) {
	var entry Entry
	err := ix.db.View(func(tx *buntdb.Tx) error {
		var err error
		entry, err = getByID(tx, id)
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (ix *Index) insert(path string, dir bool, size int64) (Entry, error) {
	parentPath, name := splitParent(path)
	if name == "" {
		return Entry{}, ErrExist // the root cannot be recreated
	}
	var entry Entry
	err := ix.db.Update(func(tx *buntdb.Tx) error {
		parent, err := findTx(tx, parentPath)
		if err != nil {
			return err
		}
		if !parent.Dir {
			return ErrNotDir
		}
		if _, err := tx.Get(entryKey(parent.ID, name)); err == nil {
			return ErrExist
		}

		id, err := nextID(tx)
		if err != nil {
			return err
		}
		now := time.Now().Unix()
		entry = Entry{
			ID:     id,
			Parent: parent.ID,
			Name:   name,
			Dir:    dir,
			Size:   size,
			ATime:  now,
			MTime:  now,
			CTime:  now,
		}
		return putEntry(tx, entry)
	})
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (ix *Index) update(id int64, mutate func(*Entry)) error {
	return ix.db.Update(func(tx *buntdb.Tx) error {
		entry, err := getByID(tx, id)
		if err != nil {
			return err
		}
		mutate(&entry)
		return putEntry(tx, entry)
	})
}

// findTx walks path from the root inside an open transaction.
func findTx(tx *buntdb.Tx, path string) (Entry, error) {
	entry, err := getEntry(tx, rootParent, "")
	if err != nil {
		return Entry{}, err
	}
	for _, part := range splitPath(path) {
		if !entry.Dir {
			return Entry{}, ErrNotDir
		}
		entry, err = getEntry(tx, entry.ID, part)
		if err != nil {
			return Entry{}, err
		}
	}
	return entry, nil
}

func getEntry(tx *buntdb.Tx, parent int64, name string) (Entry, error) {
	value, err := tx.Get(entryKey(parent, name))
	if err == buntdb.ErrNotFound {
		return Entry{}, ErrNotExist
	}
	if err != nil {
		return Entry{}, err
	}
	var entry Entry
	if err := json.UnmarshalFromString(value, &entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func getByID(tx *buntdb.Tx, id int64) (Entry, error) {
	key, err := tx.Get(idKey(id))
	if err == buntdb.ErrNotFound {
		return Entry{}, ErrNotExist
	}
	if err != nil {
		return Entry{}, err
	}
	value, err := tx.Get(key)
	if err != nil {
		return Entry{}, err
	}
	var entry Entry
	if err := json.UnmarshalFromString(value, &entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func putEntry(tx *buntdb.Tx, entry Entry) error {
	value, err := json.MarshalToString(entry)
	if err != nil {
		return err
	}
	key := entryKey(entry.Parent, entry.Name)
	if _, _, err := tx.Set(key, value, nil); err != nil {
		return err
	}
	_, _, err = tx.Set(idKey(entry.ID), key, nil)
	return err
}

func nextID(tx *buntdb.Tx) (int64, error) {
	value, err := tx.Get(seqKey)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	id++
	if _, _, err := tx.Set(seqKey, strconv.FormatInt(id, 10), nil); err != nil {
		return 0, err
	}
	return id, nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func splitParent(path string) (parent, name string) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return "/", ""
	}
	return "/" + strings.Join(parts[:len(parts)-1], "/"), parts[len(parts)-1]
}
