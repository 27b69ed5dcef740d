package testutil

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// FieldSpec describes a field file to generate for tests.
type FieldSpec struct {
	Name   string
	Width  int // 1 scalar, 3 vector
	Values []float64
	Binary bool
	// Uniform writes `uniform v` instead of a list; Values must hold one entry.
	Uniform bool
}

const banner = `/*--------------------------------*- C++ -*----------------------------------*\
  =========                 |
  \\      /  F ield         | OpenFOAM: The Open Source CFD Toolbox
   \\    /   O peration     | Website:  https://openfoam.org
    \\  /    A nd           | Version:  10
     \\/     M anipulation  |
\*---------------------------------------------------------------------------*/
`

const boundary = `
boundaryField
{
    inlet
    {
        type            fixedValue;
        value           uniform 1;
    }
    outlet
    {
        type            zeroGradient;
    }
}

// ************************************************************************* //
`

func typeName(width int) string {
	if width == 3 {
		return "vector"
	}
	return "scalar"
}

func className(width int) string {
	if width == 3 {
		return "volVectorField"
	}
	return "volScalarField"
}

func formatEntry(vals []float64) string {
	if len(vals) == 1 {
		return strconv.FormatFloat(vals[0], 'g', -1, 64)
	}
	var b bytes.Buffer
	b.WriteByte('(')
	for i, v := range vals {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	b.WriteByte(')')
	return b.String()
}

// EncodeField renders a complete field file.
func EncodeField(spec FieldSpec) []byte {
	width := spec.Width
	if width == 0 {
		width = 1
	}
	format := "ascii"
	if spec.Binary {
		format = "binary"
	}
	var b bytes.Buffer
	b.WriteString(banner)
	fmt.Fprintf(&b, "FoamFile\n{\n    version     2.0;\n    format      %s;\n    arch        \"LSB;label=32;scalar=64\";\n    class       %s;\n    location    \"0\";\n    object      %s;\n}\n", format, className(width), spec.Name)
	b.WriteString("// * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * //\n\n")
	b.WriteString("dimensions      [0 0 0 1 0 0 0];\n\n")
	n := len(spec.Values) / width
	switch {
	case spec.Uniform:
		fmt.Fprintf(&b, "internalField   uniform %s;\n", formatEntry(spec.Values[:width]))
	case spec.Binary:
		fmt.Fprintf(&b, "internalField   nonuniform List<%s> %d(", typeName(width), n)
		raw := make([]byte, 8)
		for _, v := range spec.Values {
			binary.LittleEndian.PutUint64(raw, math.Float64bits(v))
			b.Write(raw)
		}
		b.WriteString(")\n;\n")
	default:
		fmt.Fprintf(&b, "internalField   nonuniform List<%s> \n%d\n(\n", typeName(width), n)
		for i := 0; i < n; i++ {
			b.WriteString(formatEntry(spec.Values[i*width : (i+1)*width]))
			b.WriteByte('\n')
		}
		b.WriteString(")\n;\n")
	}
	b.WriteString(boundary)
	return b.Bytes()
}

// WriteField writes a generated field file into dir.
func WriteField(t testing.TB, dir string, spec FieldSpec) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, spec.Name)
	if err := os.WriteFile(path, EncodeField(spec), 0o644); err != nil {
		t.Fatalf("write field %s: %v", path, err)
	}
	return path
}

// WriteCase creates root/name with system, constant and a 0 snapshot
// holding the given fields.
func WriteCase(t testing.TB, root, name string, fields ...FieldSpec) string {
	t.Helper()
	dir := filepath.Join(root, name)
	for _, sub := range []string{"system", "constant"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", sub, err)
		}
	}
	controlDict := "FoamFile\n{\n    version 2.0;\n    format ascii;\n    class dictionary;\n    object controlDict;\n}\n\napplication     scalarTransportFoam;\nstartFrom       startTime;\nstartTime       0;\nstopAt          endTime;\nendTime         0.1;\ndeltaT          0.001;\nwriteControl    timeStep;\nwriteInterval   100;\n"
	if err := os.WriteFile(filepath.Join(dir, "system", "controlDict"), []byte(controlDict), 0o644); err != nil {
		t.Fatalf("write controlDict: %v", err)
	}
	for _, f := range fields {
		WriteField(t, filepath.Join(dir, "0"), f)
	}
	return dir
}
