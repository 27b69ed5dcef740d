package vector

import (
	"context"
	"fmt"
	"path"
	"strings"

	"pintfoam/internal/archive"
	"pintfoam/internal/snapshot"
)

// Archive packs the snapshot directory of v and stores it under
// archive.Key(base, case, time).
func (v Vector) Archive(ctx context.Context, a *archive.Archiver) (archive.Info, error) {
	var info archive.Info
	err := v.Base.observe(ctx, "archive", func(ctx context.Context) error {
		var err error
		info, err = a.Archive(ctx, v.Dirname(), archive.Key(v.Base.Name, v.Case, v.Time), map[string]string{
			"base":   v.Base.Name,
			"case":   v.Case,
			"time":   v.Time,
			"fields": strings.Join(v.Fields(), ","),
		})
		return err
	}, "case", v.Case, "time", v.Time)
	return info, err
}

// RestoreVector spawns working case name (fresh id when empty) and replaces
// its snapshot at the archived time with the archive stored under key.
func (b *BaseCase) RestoreVector(ctx context.Context, a *archive.Archiver, key, name string) (Vector, error) {
	var v Vector
	err := b.observe(ctx, "restore", func(ctx context.Context) error {
		t, err := timeFromKey(key)
		if err != nil {
			return err
		}
		x, err := b.NewVector(ctx, name)
		if err != nil {
			return err
		}
		x.Time = t
		if err := snapshot.RemoveCase(x.Dirname()); err != nil {
			return err
		}
		if err := a.Restore(ctx, key, x.Dirname()); err != nil {
			return err
		}
		v = x
		return b.record(ctx, v, "restore")
	}, "key", key)
	if err != nil {
		return Vector{}, err
	}
	return v, nil
}

func timeFromKey(key string) (string, error) {
	base := path.Base(key)
	t, ok := strings.CutSuffix(base, ".tar.zst")
	if !ok || !snapshot.IsTime(t) {
		return "", fmt.Errorf("archive key %q does not name a snapshot time", key)
	}
	return t, nil
}
