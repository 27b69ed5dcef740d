package solver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"
)

// ErrMalformedDict indicates a dictionary file whose top level could not be
// split into entries.
var ErrMalformedDict = errors.New("solver: malformed dictionary")

// Entry is one top-level `key value;` assignment. Value is written verbatim.
type Entry struct {
	Key   string
	Value string
}

// Float renders a number the way dictionary entries expect it.
func Float(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

// dictAttempts is the number of tries SetControlDict makes by default.
const dictAttempts = 5

// DefaultBackOff returns the retry policy used for controlDict rewrites:
// five attempts, 50ms apart.
func DefaultBackOff() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(50*time.Millisecond), dictAttempts-1)
}

// writeDict is replaced in tests to inject write failures.
var writeDict = writeAtomic

// SetEntries rewrites the top-level entries of the dictionary at path. Keys
// that already exist are replaced in place; missing keys are appended. Nested
// dictionaries and everything else in the file are left byte for byte.
func SetEntries(path string, entries []Entry) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	out, err := rewriteEntries(src, entries)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	st, err := os.Stat(path)
	if err != nil {
		return err
	}
	return writeDict(path, out, st.Mode().Perm())
}

// SetControlDict applies entries to casePath/system/controlDict. The prior
// bytes are restored after every failed attempt and the attempt is retried
// according to b (DefaultBackOff when nil). The last error is returned.
func SetControlDict(ctx context.Context, casePath string, entries []Entry, b backoff.BackOff) error {
	path := filepath.Join(casePath, "system", "controlDict")
	backup, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read controlDict: %w", err)
	}
	if b == nil {
		b = DefaultBackOff()
	}
	op := func() error {
		err := SetEntries(path, entries)
		if err == nil {
			return nil
		}
		if rerr := os.WriteFile(path, backup, 0o644); rerr != nil {
			return backoff.Permanent(multierror.Append(err, fmt.Errorf("restore controlDict: %w", rerr)))
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}

func writeAtomic(path string, data []byte, perm os.FileMode) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

type span struct {
	key        string
	start, end int
}

func rewriteEntries(src []byte, entries []Entry) ([]byte, error) {
	spans, err := topLevel(src)
	if err != nil {
		return nil, err
	}
	last := make(map[string]span, len(spans))
	for _, s := range spans {
		last[s.key] = s
	}
	replace := make(map[int]string)
	var missing []string
	added := make(map[string]string)
	for _, e := range entries {
		text := e.Key + " " + e.Value + ";"
		if s, ok := last[e.Key]; ok {
			replace[s.start] = text
			continue
		}
		if _, ok := added[e.Key]; !ok {
			missing = append(missing, e.Key)
		}
		added[e.Key] = text
	}
	var out bytes.Buffer
	pos := 0
	for _, s := range spans {
		if text, ok := replace[s.start]; ok {
			out.Write(src[pos:s.start])
			out.WriteString(text)
			pos = s.end
		}
	}
	out.Write(src[pos:])
	if len(missing) > 0 && out.Len() > 0 && !bytes.HasSuffix(out.Bytes(), []byte("\n")) {
		out.WriteByte('\n')
	}
	for _, k := range missing {
		out.WriteString(added[k])
		out.WriteByte('\n')
	}
	return out.Bytes(), nil
}

// topLevel splits src into its depth-zero statements.
func topLevel(src []byte) ([]span, error) {
	var out []span
	i := 0
	for {
		var err error
		if i, err = skipBlank(src, i); err != nil {
			return nil, err
		}
		if i >= len(src) {
			return out, nil
		}
		start := i
		var key string
		switch c := src[i]; {
		case c == '"':
			end, err := skipString(src, i)
			if err != nil {
				return nil, err
			}
			key, i = string(src[start:end]), end
		case isWord(c):
			for i < len(src) && isWord(src[i]) {
				i++
			}
			key = string(src[start:i])
		default:
			return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrMalformedDict, c, i)
		}
		end, err := statementEnd(src, i, key[0] == '#')
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", key, err)
		}
		out = append(out, span{key: key, start: start, end: end})
		i = end
	}
}

func statementEnd(src []byte, i int, directive bool) (int, error) {
	if directive {
		for i < len(src) && src[i] != '\n' {
			i++
		}
		return i, nil
	}
	j, err := skipBlank(src, i)
	if err != nil {
		return 0, err
	}
	if j < len(src) && src[j] == '{' {
		return matchClose(src, j)
	}
	depth := 0
	for i < len(src) {
		switch src[i] {
		case '"':
			end, err := skipString(src, i)
			if err != nil {
				return 0, err
			}
			i = end
			continue
		case '/':
			if k, ok, err := skipComment(src, i); err != nil {
				return 0, err
			} else if ok {
				i = k
				continue
			}
		case '(', '{', '[':
			depth++
		case ')', '}', ']':
			depth--
			if depth < 0 {
				return 0, fmt.Errorf("%w: unbalanced %q at offset %d", ErrMalformedDict, src[i], i)
			}
		case ';':
			if depth == 0 {
				return i + 1, nil
			}
		}
		i++
	}
	return 0, fmt.Errorf("%w: missing ';'", ErrMalformedDict)
}

func matchClose(src []byte, i int) (int, error) {
	depth := 0
	for i < len(src) {
		switch src[i] {
		case '"':
			end, err := skipString(src, i)
			if err != nil {
				return 0, err
			}
			i = end
			continue
		case '/':
			if k, ok, err := skipComment(src, i); err != nil {
				return 0, err
			} else if ok {
				i = k
				continue
			}
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, nil
			}
		}
		i++
	}
	return 0, fmt.Errorf("%w: unterminated block", ErrMalformedDict)
}

func skipBlank(src []byte, i int) (int, error) {
	for i < len(src) {
		switch src[i] {
		case ' ', '\t', '\n', '\r':
			i++
			continue
		case '/':
			k, ok, err := skipComment(src, i)
			if err != nil {
				return 0, err
			}
			if ok {
				i = k
				continue
			}
		}
		return i, nil
	}
	return i, nil
}

func skipComment(src []byte, i int) (int, bool, error) {
	if i+1 >= len(src) {
		return i, false, nil
	}
	switch src[i+1] {
	case '/':
		k := bytes.IndexByte(src[i:], '\n')
		if k < 0 {
			return len(src), true, nil
		}
		return i + k + 1, true, nil
	case '*':
		k := bytes.Index(src[i+2:], []byte("*/"))
		if k < 0 {
			return 0, false, fmt.Errorf("%w: unterminated comment", ErrMalformedDict)
		}
		return i + 2 + k + 2, true, nil
	}
	return i, false, nil
}

func skipString(src []byte, i int) (int, error) {
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case '"':
			return j + 1, nil
		}
	}
	return 0, fmt.Errorf("%w: unterminated string", ErrMalformedDict)
}

func isWord(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', ';', '{', '}', '(', ')', '[', ']', '"':
		return false
	}
	return true
}
