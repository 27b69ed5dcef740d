package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/klauspost/compress/zstd"
)

// ContentType labels archive objects.
const ContentType = "application/x-tar+zstd"

// Key returns the object key of a snapshot archive: <base>/<case>/<time>.tar.zst.
func Key(base, caseID, t string) string {
	return path.Join(base, caseID, t) + ".tar.zst"
}

// Archiver packs snapshot directories into zstd compressed tarballs.
type Archiver struct {
	store Store
	level zstd.EncoderLevel
}

// NewArchiver wraps store.
func NewArchiver(store Store) *Archiver {
	return &Archiver{store: store, level: zstd.SpeedDefault}
}

// Store returns the underlying object store.
func (a *Archiver) Store() Store { return a.store }

// Archive tars dir (entries relative to dir), compresses the stream and
// stores it under key. The tarball is spooled to a temporary file first so
// the store receives a seekable body of known length.
func (a *Archiver) Archive(ctx context.Context, dir, key string, meta map[string]string) (Info, error) {
	st, err := os.Stat(dir)
	if err != nil {
		return Info{}, fmt.Errorf("archive %s: %w", dir, err)
	}
	if !st.IsDir() {
		return Info{}, fmt.Errorf("archive %s: not a directory", dir)
	}
	spool, err := os.CreateTemp("", "pintfoam-archive-*")
	if err != nil {
		return Info{}, err
	}
	defer func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}()
	if err := a.pack(ctx, dir, spool); err != nil {
		return Info{}, err
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return Info{}, err
	}
	return a.store.Put(ctx, key, spool, PutOptions{ContentType: ContentType, Metadata: meta})
}

func (a *Archiver) pack(ctx context.Context, dir string, w io.Writer) (err error) {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(a.level))
	if err != nil {
		return err
	}
	tw := tar.NewWriter(zw)
	defer func() {
		var merr *multierror.Error
		merr = multierror.Append(merr, err)
		if cerr := tw.Close(); cerr != nil {
			merr = multierror.Append(merr, fmt.Errorf("close tar: %w", cerr))
		}
		if cerr := zw.Close(); cerr != nil {
			merr = multierror.Append(merr, fmt.Errorf("close zstd: %w", cerr))
		}
		err = merr.ErrorOrNil()
	}()
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		var link string
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(p); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		return err
	})
}

// Restore extracts the archive stored under key into dst, which must not
// exist. A failed restore leaves no partial dst behind.
func (a *Archiver) Restore(ctx context.Context, key, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, dst)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	_, body, err := a.store.Get(ctx, key)
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	if err := unpack(ctx, body, dst); err != nil {
		_ = os.RemoveAll(dst)
		return fmt.Errorf("restore %s: %w", key, err)
	}
	return nil
}

// unpack extracts the archive below dst through an os.Root, so no entry can
// reach outside dst, including through links extracted earlier.
func unpack(ctx context.Context, r io.Reader, dst string) error {
	root, err := os.OpenRoot(dst)
	if err != nil {
		return err
	}
	defer func() { _ = root.Close() }()
	zr, err := zstd.NewReader(r)
	if err != nil {
		return err
	}
	defer zr.Close()
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name := filepath.FromSlash(strings.TrimSuffix(hdr.Name, "/"))
		if !filepath.IsLocal(name) {
			return fmt.Errorf("unsafe entry name %q", hdr.Name)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := root.MkdirAll(name, hdr.FileInfo().Mode().Perm()|0o700); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(root, name, hdr.FileInfo().Mode().Perm(), tr); err != nil {
				return err
			}
		case tar.TypeSymlink:
			resolved := filepath.Join(filepath.Dir(name), filepath.FromSlash(hdr.Linkname))
			if filepath.IsAbs(hdr.Linkname) || !filepath.IsLocal(resolved) {
				return fmt.Errorf("unsafe link %q -> %q", hdr.Name, hdr.Linkname)
			}
			if err := root.Symlink(hdr.Linkname, name); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported entry type %q for %s", hdr.Typeflag, hdr.Name)
		}
	}
}

func writeEntry(root *os.Root, name string, perm fs.FileMode, r io.Reader) error {
	if dir := filepath.Dir(name); dir != "." {
		if err := root.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := root.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
