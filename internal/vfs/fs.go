// Package vfs is the filesystem surface over the path index and the block
// pool: FUSE dispatch for attribute queries, directory listing and
// read-only file access, plus the file layer mapping logical byte ranges
// onto block sequences.
package vfs

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"syscall"
	"time"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
	"go.uber.org/zap"

	"github.com/vramfs/vramfs/internal/index"
	"github.com/vramfs/vramfs/internal/vram"
)

// FS is the FUSE filesystem root.
type FS struct {
	idx   *index.Index
	files *fileTable
	log   *zap.Logger
}

// New builds the filesystem over an index and a probed block pool.
func New(idx *index.Index, pool *vram.Pool, log *zap.Logger) *FS {
	if log == nil {
		log = zap.NewNop()
	}
	return &FS{idx: idx, files: newFileTable(pool), log: log.Named("vfs")}
}

// Root implements fusefs.FS.
func (f *FS) Root() (fusefs.Node, error) {
	return &Dir{fsys: f, path: "/"}, nil
}

// WriteFile creates a file entry at the given path and stores data as its
// content, recording the resulting size in the index.
func (f *FS) WriteFile(p string, data []byte) error {
	entry, err := f.idx.Create(p)
	if err != nil {
		return err
	}
	if _, err := f.files.writeAt(entry.ID, data, 0); err != nil {
		return err
	}
	return f.idx.SetSize(entry.ID, int64(len(data)))
}

// ReadFile returns the full content of the file at the given path.
func (f *FS) ReadFile(p string) ([]byte, error) {
	entry, err := f.idx.Find(p, index.FilesOnly)
	if err != nil {
		return nil, err
	}
	data := make([]byte, entry.Size)
	n, err := f.files.readAt(entry.ID, data, 0)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return data[:n], nil
}

// RemoveFile drops a file's content, returning its blocks to the pool.
func (f *FS) RemoveFile(p string) error {
	entry, err := f.idx.Find(p, index.FilesOnly)
	if err != nil {
		return err
	}
	return f.files.release(entry.ID)
}

// Mount mounts fsys read-only at mountpoint and serves requests until the
// filesystem is unmounted.
func Mount(mountpoint string, fsys *FS) error {
	conn, err := fuse.Mount(mountpoint,
		fuse.FSName("vramfs"),
		fuse.Subtype("vramfs"),
		fuse.ReadOnly(),
	)
	if err != nil {
		return err
	}
	defer conn.Close()

	fsys.log.Info("filesystem mounted", zap.String("mountpoint", mountpoint))
	return fusefs.Serve(conn, fsys)
}

// Unmount detaches the filesystem mounted at mountpoint.
func Unmount(mountpoint string) error {
	return fuse.Unmount(mountpoint)
}

func errno(err error) error {
	switch {
	case errors.Is(err, index.ErrNotExist):
		return syscall.ENOENT
	case errors.Is(err, index.ErrNotDir):
		return syscall.ENOTDIR
	case errors.Is(err, index.ErrIsDir):
		return syscall.EISDIR
	case errors.Is(err, ErrNoSpace):
		return syscall.ENOSPC
	}
	return err
}

func fillAttr(e index.Entry, a *fuse.Attr) {
	a.Inode = uint64(e.ID)
	a.Size = uint64(e.Size)
	a.Atime = time.Unix(e.ATime, 0)
	a.Mtime = time.Unix(e.MTime, 0)
	a.Ctime = time.Unix(e.CTime, 0)
	a.Uid = uint32(os.Geteuid())
	a.Gid = uint32(os.Getegid())
	if e.Dir {
		a.Mode = os.ModeDir | 0o755
		a.Nlink = 2
	} else {
		a.Mode = 0o444
		a.Nlink = 1
	}
}

var (
	_ fusefs.FS                 = (*FS)(nil)
	_ fusefs.Node               = (*Dir)(nil)
	_ fusefs.NodeStringLookuper = (*Dir)(nil)
	_ fusefs.HandleReadDirAller = (*Dir)(nil)
	_ fusefs.Node               = (*File)(nil)
	_ fusefs.NodeOpener         = (*File)(nil)
	_ fusefs.HandleReader       = (*fileHandle)(nil)
)

// Dir is a directory node.
type Dir struct {
	fsys *FS
	path string
}

func (d *Dir) Attr(ctx context.Context, a *fuse.Attr) error {
	entry, err := d.fsys.idx.Find(d.path, index.DirsOnly)
	if err != nil {
		return errno(err)
	}
	fillAttr(entry, a)
	return nil
}

func (d *Dir) Lookup(ctx context.Context, name string) (fusefs.Node, error) {
	entry, err := d.fsys.idx.Find(path.Join(d.path, name), index.Any)
	if err != nil {
		return nil, errno(err)
	}
	if entry.Dir {
		return &Dir{fsys: d.fsys, path: path.Join(d.path, name)}, nil
	}
	return &File{fsys: d.fsys, path: path.Join(d.path, name)}, nil
}

func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	children, err := d.fsys.idx.List(d.path)
	if err != nil {
		return nil, errno(err)
	}
	dirents := make([]fuse.Dirent, 0, len(children))
	for _, child := range children {
		typ := fuse.DT_File
		if child.Dir {
			typ = fuse.DT_Dir
		}
		dirents = append(dirents, fuse.Dirent{
			Inode: uint64(child.ID),
			Type:  typ,
			Name:  child.Name,
		})
	}
	return dirents, nil
}

// File is a regular file node.
type File struct {
	fsys *FS
	path string
}

func (f *File) Attr(ctx context.Context, a *fuse.Attr) error {
	entry, err := f.fsys.idx.Find(f.path, index.FilesOnly)
	if err != nil {
		return errno(err)
	}
	fillAttr(entry, a)
	return nil
}

func (f *File) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fusefs.Handle, error) {
	// Files can only be read for now.
	if !req.Flags.IsReadOnly() {
		return nil, syscall.EACCES
	}
	entry, err := f.fsys.idx.Find(f.path, index.FilesOnly)
	if err != nil {
		return nil, errno(err)
	}
	if err := f.fsys.idx.Touch(entry.ID); err != nil {
		return nil, errno(err)
	}
	return &fileHandle{fsys: f.fsys, id: entry.ID}, nil
}

type fileHandle struct {
	fsys *FS
	id   int64
}

func (h *fileHandle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	buf := make([]byte, req.Size)
	n, err := h.fsys.files.readAt(h.id, buf, req.Offset)
	if err != nil && err != io.EOF {
		return errno(err)
	}
	resp.Data = buf[:n]
	return nil
}
