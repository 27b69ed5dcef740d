package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func mkdirs(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.MkdirAll(filepath.Join(root, n), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", n, err)
		}
	}
}

func TestListTimes_NumericOrder(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "10", "2", "0", "0.1", "system", "constant", "1e-3", "nan", "inf", "-Infinity", "0x1p-2")
	if err := os.WriteFile(filepath.Join(root, "5"), []byte("not a dir"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ListTimes(root)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"0", "1e-3", "0.1", "2", "10"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	latest, err := Latest(root)
	if err != nil || latest != "10" {
		t.Fatalf("latest: %q %v", latest, err)
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		name string
		want float64
		ok   bool
	}{
		{"0", 0, true},
		{"0.25", 0.25, true},
		{"1e-05", 1e-05, true},
		{"-1", -1, true},
		{"NaN", 0, false},
		{"+Inf", 0, false},
		{"infinity", 0, false},
		{"0x10", 0, false},
		{"1_000", 0, false},
		{"constant", 0, false},
	}
	for _, tc := range tests {
		got, ok := ParseTime(tc.name)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ParseTime(%q) = %v, %v; want %v, %v", tc.name, got, ok, tc.want, tc.ok)
		}
		if IsTime(tc.name) != tc.ok {
			t.Fatalf("IsTime(%q) disagrees with ParseTime", tc.name)
		}
	}
}

func TestListTimes_EmptyAndMissing(t *testing.T) {
	root := t.TempDir()
	times, err := ListTimes(root)
	if err != nil || len(times) != 0 {
		t.Fatalf("expected empty list, got %v %v", times, err)
	}
	if _, err := Latest(root); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for latest, got %v", err)
	}
	if _, err := ListTimes(filepath.Join(root, "missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCopyCase(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "base")
	mkdirs(t, src, "system", "constant/polyMesh", "0")
	if err := os.WriteFile(filepath.Join(src, "0", "T"), []byte("field"), 0o640); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Symlink("0/T", filepath.Join(src, "link")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	dst := filepath.Join(root, "copy")
	if err := CopyCase(src, dst); err != nil {
		t.Fatalf("copy: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dst, "0", "T"))
	if err != nil || string(b) != "field" {
		t.Fatalf("copied content mismatch: %q %v", b, err)
	}
	st, err := os.Stat(filepath.Join(dst, "0", "T"))
	if err != nil || st.Mode().Perm() != 0o640 {
		t.Fatalf("mode not preserved: %v %v", st, err)
	}
	if link, err := os.Readlink(filepath.Join(dst, "link")); err != nil || link != "0/T" {
		t.Fatalf("symlink not recreated: %q %v", link, err)
	}
	if _, err := os.Stat(filepath.Join(dst, "constant", "polyMesh")); err != nil {
		t.Fatalf("nested dir missing: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dst, "0", "T"), []byte("changed"), 0o640); err != nil {
		t.Fatalf("write: %v", err)
	}
	if b, _ := os.ReadFile(filepath.Join(src, "0", "T")); string(b) != "field" {
		t.Fatalf("source modified through copy: %q", b)
	}

	if err := CopyCase(src, dst); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
	if err := CopyCase(filepath.Join(root, "missing"), filepath.Join(root, "x")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRemoveCase_Idempotent(t *testing.T) {
	root := t.TempDir()
	if err := RemoveCase(filepath.Join(root, "does-not-exist")); err != nil {
		t.Fatalf("remove missing: %v", err)
	}
	mkdirs(t, root, "c/0")
	if err := RemoveCase(filepath.Join(root, "c")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "c")); !os.IsNotExist(err) {
		t.Fatalf("expected removal, got %v", err)
	}
}

func TestReplaceSnapshot_DeletesStaleFiles(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a", "0.5")
	dst := filepath.Join(root, "b", "0.5")
	mkdirs(t, root, "a/0.5", "b/0.5")
	if err := os.WriteFile(filepath.Join(src, "T"), []byte("new"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dst, "stale"), []byte("old"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ReplaceSnapshot(src, dst); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "stale")); !os.IsNotExist(err) {
		t.Fatalf("stale file survived replace")
	}
	if b, _ := os.ReadFile(filepath.Join(dst, "T")); string(b) != "new" {
		t.Fatalf("unexpected content %q", b)
	}
}

func TestWatch_ReportsNewSnapshots(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	seen := make(chan string, 4)
	done := make(chan error, 1)
	started := make(chan struct{})
	go func() {
		close(started)
		done <- Watch(ctx, root, func(name string) { seen <- name })
	}()
	<-started
	deadline := time.After(4 * time.Second)
	for i := 0; ; i++ {
		// the watcher registers asynchronously; keep creating until it reports
		mkdirs(t, root, "0.1")
		mkdirs(t, root, "logs")
		select {
		case name := <-seen:
			if name != "0.1" {
				t.Fatalf("unexpected snapshot %q", name)
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("watch: %v", err)
			}
			return
		case <-time.After(50 * time.Millisecond):
			_ = os.Remove(filepath.Join(root, "0.1"))
			_ = os.Remove(filepath.Join(root, "logs"))
		case <-deadline:
			t.Fatalf("no snapshot reported after %d attempts", i)
		}
	}
}

func TestFollow_ListsThenWatches(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "0.1", "0", "system")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var got []string
	done := make(chan error, 1)
	go func() {
		done <- Follow(ctx, root, func(name string) bool {
			got = append(got, name)
			return name != "0.2"
		})
	}()
	mkdirs(t, root, "0.2")
	if err := <-done; err != nil {
		t.Fatalf("follow: %v", err)
	}
	if ctx.Err() != nil {
		t.Fatalf("follow did not stop at 0.2, saw %v", got)
	}
	if want := []string{"0", "0.1", "0.2"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if err := Follow(ctx, filepath.Join(root, "missing"), func(string) bool { return true }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
