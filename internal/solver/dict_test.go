package solver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cenkalti/backoff/v4"
)

const controlDict = `/*--------------------------------*- C++ -*----------------------------------*\
  =========                 |
  \\      /  F ield         | OpenFOAM
\*---------------------------------------------------------------------------*/
FoamFile
{
    version     2.0;
    format      ascii;
    class       dictionary;
    object      controlDict;
}
// * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * //

application     scalarTransportFoam;
startFrom       startTime; // overwritten per run
startTime       0;
endTime         0.1;
deltaT          0.001;
functions
{
    probes { type probes; endTime 9; }
}
#include "extraSettings"
libs ("libfoo.so" "libbar.so");

// ************************************************************************* //
`

func writeDictFile(t *testing.T, content string) (string, string) {
	t.Helper()
	casePath := t.TempDir()
	if err := os.MkdirAll(filepath.Join(casePath, "system"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(casePath, "system", "controlDict")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return casePath, path
}

func readString(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func noWait() backoff.BackOff {
	return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, dictAttempts-1)
}

func TestSetEntriesReplacesTopLevelOnly(t *testing.T) {
	_, path := writeDictFile(t, controlDict)
	err := SetEntries(path, []Entry{
		{Key: "startFrom", Value: "latestTime"},
		{Key: "endTime", Value: Float(0.25)},
		{Key: "writeControl", Value: "runTime"},
		{Key: "writeControl", Value: "adjustableRunTime"},
	})
	if err != nil {
		t.Fatalf("SetEntries: %v", err)
	}
	got := readString(t, path)
	for _, want := range []string{
		"startFrom latestTime;",
		"endTime 0.25;",
		"writeControl adjustableRunTime;\n",
		"probes { type probes; endTime 9; }",
		`#include "extraSettings"`,
		`libs ("libfoo.so" "libbar.so");`,
		"startTime       0;",
		"object      controlDict;",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in\n%s", want, got)
		}
	}
	if strings.Contains(got, "endTime         0.1;") || !strings.Contains(got, "latestTime; // overwritten per run") {
		t.Fatalf("unexpected rewrite:\n%s", got)
	}
	if strings.Count(got, "writeControl") != 1 {
		t.Fatalf("duplicate keys must collapse:\n%s", got)
	}
}

func TestSetEntriesMalformed(t *testing.T) {
	for name, content := range map[string]string{
		"missing semicolon":    "startTime 0\n",
		"unterminated block":   "FoamFile { version 2.0;\n",
		"unterminated comment": "/* never closed\nstartTime 0;\n",
		"unbalanced":           "libs ());\n",
		"unterminated string":  "libs (\"a);\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, path := writeDictFile(t, content)
			err := SetEntries(path, []Entry{{Key: "startTime", Value: "1"}})
			if !errors.Is(err, ErrMalformedDict) {
				t.Fatalf("expected ErrMalformedDict, got %v", err)
			}
			if readString(t, path) != content {
				t.Fatalf("file must be untouched")
			}
		})
	}
}

func TestSetControlDictRetriesAndRestores(t *testing.T) {
	casePath, path := writeDictFile(t, controlDict)
	calls := 0
	orig := writeDict
	writeDict = func(p string, data []byte, perm os.FileMode) error {
		calls++
		if calls < 3 {
			_ = os.WriteFile(p, []byte("garbage"), perm)
			return errors.New("disk hiccup")
		}
		return orig(p, data, perm)
	}
	defer func() { writeDict = orig }()

	if err := SetControlDict(context.Background(), casePath, []Entry{{Key: "deltaT", Value: "0.5"}}, noWait()); err != nil {
		t.Fatalf("SetControlDict: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if got := readString(t, path); !strings.Contains(got, "deltaT 0.5;") || !strings.Contains(got, "application     scalarTransportFoam;") {
		t.Fatalf("unexpected controlDict:\n%s", got)
	}
}

func TestSetControlDictGivesUp(t *testing.T) {
	casePath, path := writeDictFile(t, controlDict)
	calls := 0
	orig := writeDict
	writeDict = func(p string, _ []byte, perm os.FileMode) error {
		calls++
		_ = os.WriteFile(p, []byte("garbage"), perm)
		return errors.New("disk hiccup")
	}
	defer func() { writeDict = orig }()

	err := SetControlDict(context.Background(), casePath, []Entry{{Key: "deltaT", Value: "0.5"}}, noWait())
	if err == nil || !strings.Contains(err.Error(), "disk hiccup") {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != dictAttempts {
		t.Fatalf("expected %d attempts, got %d", dictAttempts, calls)
	}
	if readString(t, path) != controlDict {
		t.Fatalf("controlDict must be restored after the last failure")
	}
}

func TestSetControlDictMissing(t *testing.T) {
	err := SetControlDict(context.Background(), t.TempDir(), nil, nil)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
