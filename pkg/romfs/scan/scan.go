// Package scan recursively walks a host directory tree into the in-memory
// shape the RomFS builder consumes: a tree of directories and files
// carrying UTF-16LE names and byte lengths.
package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/text/encoding/unicode"
)

// File is one leaf entry: a host file with its UTF-16LE name.
type File struct {
	HostPath string
	Name     []uint16 // UTF-16LE code units, no NUL terminator
	NameSize uint32   // byte length of Name
	Size     uint64
}

// Dir is one directory node: its UTF-16LE name plus child dirs/files in
// scan order (stable, not required to be sorted per spec.md 4.3.1).
type Dir struct {
	HostPath string
	Name     []uint16
	NameSize uint32
	Children []*Dir
	Files    []*File
}

var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()

func toUTF16(name string) ([]uint16, uint32, error) {
	encoded, err := utf16LE.String(name)
	if err != nil {
		return nil, 0, fmt.Errorf("encoding name %q as UTF-16LE: %w", name, err)
	}
	units := make([]uint16, 0, len(encoded)/2)
	for i := 0; i+1 < len(encoded); i += 2 {
		units = append(units, uint16(encoded[i])|uint16(encoded[i+1])<<8)
	}
	return units, uint32(len(units) * 2), nil
}

// Scan walks root and returns its tree, rooted at an empty-named directory.
func Scan(root string) (*Dir, error) {
	d := &Dir{HostPath: root}
	if err := populate(d); err != nil {
		return nil, err
	}
	return d, nil
}

// populate mirrors the original scanner: skip dot-prefixed entries, classify
// by stat, recurse into subdirectories depth-first.
func populate(dir *Dir) error {
	entries, err := os.ReadDir(dir.HostPath)
	if err != nil {
		return fmt.Errorf("failed to open directory %q: %w", dir.HostPath, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		name := e.Name()
		if len(name) > 0 && name[0] == '.' {
			continue
		}
		path := filepath.Join(dir.HostPath, name)

		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("failed to stat %q: %w", path, err)
		}

		units, size, err := toUTF16(name)
		if err != nil {
			return err
		}

		if info.IsDir() {
			child := &Dir{HostPath: path, Name: units, NameSize: size}
			if err := populate(child); err != nil {
				return err
			}
			dir.Children = append(dir.Children, child)
		} else {
			dir.Files = append(dir.Files, &File{
				HostPath: path,
				Name:     units,
				NameSize: size,
				Size:     uint64(info.Size()),
			})
		}
	}
	return nil
}

// DirCount returns the total number of directories in the subtree rooted
// at dir, not counting dir itself (matching getDirNum's semantics).
func DirCount(dir *Dir) uint32 {
	n := uint32(len(dir.Children))
	for _, c := range dir.Children {
		n += DirCount(c)
	}
	return n
}

// FileCount returns the total number of files in the subtree rooted at dir.
func FileCount(dir *Dir) uint32 {
	n := uint32(len(dir.Files))
	for _, c := range dir.Children {
		n += FileCount(c)
	}
	return n
}
