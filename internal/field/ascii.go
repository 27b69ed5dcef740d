package field

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

func formatScalar(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeEntry(b *bytes.Buffer, vals []float64, tuple bool) {
	if tuple {
		b.WriteByte('(')
	}
	for i, v := range vals {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(formatScalar(v))
	}
	if tuple {
		b.WriteByte(')')
	}
}

// encodeASCII renders the mutable span of an ascii layout. For uniform
// fields that is the value itself, for lists the text between the
// parentheses.
func encodeASCII(l layout, vals []float64) []byte {
	var b bytes.Buffer
	if l.uniform {
		writeEntry(&b, vals, l.tuple)
		return b.Bytes()
	}
	w := l.kind.Width()
	b.WriteByte('\n')
	for i := 0; i < l.count; i++ {
		writeEntry(&b, vals[i*w:(i+1)*w], l.tuple)
		b.WriteByte('\n')
	}
	return b.Bytes()
}

// spliceFile replaces the mutable span of a file whose new encoding no
// longer fits in place. prefix and suffix are written back unchanged.
func spliceFile(path string, prefix, span, suffix []byte) error {
	st, err := os.Stat(path)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".field-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	for _, part := range [][]byte{prefix, span, suffix} {
		if _, err := tmp.Write(part); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("write %s: %w", tmp.Name(), err)
		}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), st.Mode().Perm()); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
