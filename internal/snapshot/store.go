// Package snapshot manages case directories on the local filesystem:
// enumerating snapshot times and copying or removing whole case trees.
package snapshot

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrNotFound indicates a missing case or snapshot directory. It wraps fs.ErrNotExist.
	ErrNotFound = fmt.Errorf("case directory not found: %w", fs.ErrNotExist)
	// ErrAlreadyExists indicates a copy destination that is already present. It wraps fs.ErrExist.
	ErrAlreadyExists = fmt.Errorf("case directory already exists: %w", fs.ErrExist)
)

// IsTime reports whether a directory name denotes a snapshot time.
func IsTime(name string) bool {
	_, ok := ParseTime(name)
	return ok
}

// ParseTime returns the numeric value of a snapshot directory name. Only
// finite decimal numbers qualify; nan, inf and hex literals do not.
func ParseTime(name string) (float64, bool) {
	if strings.ContainsAny(name, "xX_") {
		return 0, false
	}
	v, err := strconv.ParseFloat(name, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ListTimes returns the snapshot directory names of casePath sorted by
// numeric value, so "2" precedes "10".
func ListTimes(casePath string) ([]string, error) {
	entries, err := os.ReadDir(casePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, casePath)
	}
	if err != nil {
		return nil, fmt.Errorf("list snapshots of %s: %w", casePath, err)
	}
	type snap struct {
		name  string
		value float64
	}
	var snaps []snap
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		v, ok := ParseTime(e.Name())
		if !ok {
			continue
		}
		snaps = append(snaps, snap{name: e.Name(), value: v})
	}
	sort.SliceStable(snaps, func(i, j int) bool {
		if snaps[i].value == snaps[j].value {
			return snaps[i].name < snaps[j].name
		}
		return snaps[i].value < snaps[j].value
	})
	times := make([]string, len(snaps))
	for i, s := range snaps {
		times[i] = s.name
	}
	return times, nil
}

// Latest returns the greatest snapshot time of casePath.
func Latest(casePath string) (string, error) {
	times, err := ListTimes(casePath)
	if err != nil {
		return "", err
	}
	if len(times) == 0 {
		return "", fmt.Errorf("%w: no snapshots in %s", ErrNotFound, casePath)
	}
	return times[len(times)-1], nil
}

// CopyCase recursively copies src to dst. dst must not exist. Regular files
// are cloned copy-on-write where the filesystem supports it.
func CopyCase(src, dst string) error {
	st, err := os.Stat(src)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, src)
	}
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return fmt.Errorf("copy %s: not a directory", src)
	}
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, dst)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.Mkdir(target, info.Mode().Perm()|0o700)
		case info.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			return nil
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if cloneFile(out, in) {
		return out.Close()
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}

// RemoveCase deletes the tree at path. A missing path is not an error.
func RemoveCase(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// ReplaceSnapshot makes dst an exact copy of src: dst is removed first, so
// nothing of its previous content survives.
func ReplaceSnapshot(src, dst string) error {
	if err := RemoveCase(dst); err != nil {
		return err
	}
	return CopyCase(src, dst)
}
