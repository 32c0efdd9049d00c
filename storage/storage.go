package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

var (
	DefaultFileLimit = 1000

	ErrOutside = errors.New("path escapes the download directory")
)

// Storage is a view of the download directory. All paths are relative to
// its root.
type Storage struct {
	FileLimit int
	fs        afero.Fs
}

func New(fs afero.Fs) *Storage {
	return &Storage{FileLimit: DefaultFileLimit, fs: fs}
}

// NewDisk roots a Storage at basePath on the local disk.
func NewDisk(basePath string) *Storage {
	return New(afero.NewBasePathFs(afero.NewOsFs(), basePath))
}

type Node struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	Children []*Node   `json:"children,omitempty"`
}

// clean anchors rel at the root so ".." can never climb above it.
func clean(rel string) (string, error) {
	if strings.ContainsRune(rel, 0) {
		return "", ErrOutside
	}
	return filepath.Clean(string(filepath.Separator) + filepath.FromSlash(rel)), nil
}

// List walks rel and returns its tree. Hidden and non-regular files are
// skipped.
func (s *Storage) List(rel string) (*Node, error) {
	p, err := clean(rel)
	if err != nil {
		return nil, err
	}
	info, err := s.fs.Stat(p)
	if err != nil {
		return nil, err
	}
	root := &Node{}
	if err := s.list(p, info, root, new(int)); err != nil {
		return nil, err
	}
	return root, nil
}

func (s *Storage) list(path string, info os.FileInfo, node *Node, n *int) error {
	if (!info.IsDir() && !info.Mode().IsRegular()) || strings.HasPrefix(info.Name(), ".") {
		return errors.New("non-regular file")
	}
	(*n)++
	if *n > s.FileLimit {
		return errors.New("over file limit")
	}
	node.Name = info.Name()
	node.Size = info.Size()
	node.Modified = info.ModTime()
	if !info.IsDir() {
		return nil
	}
	children, err := afero.ReadDir(s.fs, path)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", path, err)
	}
	node.Size = 0
	for _, i := range children {
		c := &Node{}
		if err := s.list(filepath.Join(path, i.Name()), i, c, n); err != nil {
			continue
		}
		node.Size += c.Size
		node.Children = append(node.Children, c)
	}
	return nil
}

// RemoveAll deletes rel and everything below it. Removing the root itself
// is refused.
func (s *Storage) RemoveAll(rel string) error {
	p, err := clean(rel)
	if err != nil {
		return err
	}
	if p == string(filepath.Separator) {
		return ErrOutside
	}
	return s.fs.RemoveAll(p)
}

// Exists reports whether rel is present.
func (s *Storage) Exists(rel string) bool {
	p, err := clean(rel)
	if err != nil {
		return false
	}
	ok, _ := afero.Exists(s.fs, p)
	return ok
}
