package layout

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSchema(t *testing.T) {
	s := DefaultSchema()
	assert.Equal(t, uintptr(8), s.PointerSize)
	assert.Equal(t, []string{"GroundVehicleFields", "HostShipState", "HostVehicleState", "VehicleInputs"}, s.Types())

	members, err := s.Shape("GroundVehicleFields")
	require.NoError(t, err)

	r := NewResolver(s.PointerSize)
	l := r.Place(members)

	want := map[string]uintptr{
		"mobile":       0,
		"inputs":       4,
		"holdPosition": 16,
		"position":     20,
		"rotation":     32,
		"velocity":     48,
		"destination":  60,
		"topSpeed":     76,
		"unitState":    80,
		"wheelCount":   84,
		"rigidbody":    88,
	}
	for name, off := range want {
		got, ok := l.Offset(name)
		require.True(t, ok, name)
		assert.Equal(t, off, got, name)
	}
	assert.Equal(t, uintptr(96), l.Size)
	assert.Equal(t, uintptr(16), l.Align)

	inputs := l.Fields[1].Field
	assert.Equal(t, KindAggregate, inputs.Kind)
	assert.Equal(t, "VehicleInputs", inputs.TypeName)
	require.Len(t, inputs.Members, 3)
}

func TestLoadSchema(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "valid",
			yaml: `
types:
  Inner:
    - {name: a, kind: float}
  Outer:
    - {name: flag, kind: bool}
    - {name: inner, type: Inner}
    - name: maybe
      kind: optional
      elem: {type: Inner}
`,
		},
		{
			name:    "empty",
			yaml:    "types: {}\n",
			wantErr: "no types declared",
		},
		{
			name: "unknown kind",
			yaml: `
types:
  Outer:
    - {name: a, kind: decimal}
`,
			wantErr: "unknown field kind",
		},
		{
			name: "undeclared reference",
			yaml: `
types:
  Outer:
    - {name: a, type: Missing}
`,
			wantErr: `type "Missing" is not declared`,
		},
		{
			name: "self containing",
			yaml: `
types:
  Loop:
    - {name: a, kind: int}
    - {name: again, type: Loop}
`,
			wantErr: "contains itself",
		},
		{
			name: "optional without elem",
			yaml: `
types:
  Outer:
    - {name: a, kind: nullable}
`,
			wantErr: "optional needs an elem",
		},
		{
			name: "unnamed member",
			yaml: `
types:
  Outer:
    - {kind: int}
`,
			wantErr: "has no name",
		},
		{
			name: "unknown key",
			yaml: `
types:
  Outer:
    - {name: a, kind: int, offset: 4}
`,
			wantErr: "offset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := LoadSchema(strings.NewReader(tt.yaml))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)

			members, err := s.Shape("Outer")
			require.NoError(t, err)
			require.Len(t, members, 3)
			require.NotNil(t, members[2].Elem)
			assert.Equal(t, KindAggregate, members[2].Elem.Kind)

			r := NewResolver(s.PointerSize)
			l := r.Place(members)
			off, _ := l.Offset("maybe")
			assert.Equal(t, uintptr(8), off)
			assert.Equal(t, uintptr(16), l.Size)
		})
	}
}

func TestLoadSchemaFile(t *testing.T) {
	t.Run("empty path uses embedded shapes", func(t *testing.T) {
		s, err := LoadSchemaFile("")
		require.NoError(t, err)
		assert.Contains(t, s.Types(), "VehicleInputs")
	})

	t.Run("file on disk", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "shapes.yaml")
		require.NoError(t, os.WriteFile(path, []byte("pointer_size: 4\ntypes:\n  T:\n    - {name: p, kind: pointer}\n"), 0o644))

		s, err := LoadSchemaFile(path)
		require.NoError(t, err)
		assert.Equal(t, uintptr(4), s.PointerSize)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadSchemaFile(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestLoadSchema_SizeAndAlign(t *testing.T) {
	load := func(t *testing.T, pointerSize int, member string) (*Schema, error) {
		t.Helper()
		doc := "types:\n  T:\n    - " + member + "\n    - {name: after, kind: f32}\n"
		if pointerSize != 0 {
			doc = "pointer_size: " + strconv.Itoa(pointerSize) + "\n" + doc
		}
		return LoadSchema(strings.NewReader(doc))
	}

	accepted := []struct {
		name      string
		member    string
		wantAfter uintptr
	}{
		{"four-byte bool", "{name: m, kind: bool, size: 4, align: 4}", 4},
		{"wide bool keeps natural align", "{name: m, kind: bool, size: 4}", 4},
		{"packed double", "{name: m, kind: f64, align: 1}", 8},
		{"over-aligned aggregate", "{name: m, type: Inner, align: 16}", 16},
	}
	for _, tt := range accepted {
		t.Run(tt.name, func(t *testing.T) {
			doc := "types:\n  Inner:\n    - {name: x, kind: u8}\n  T:\n    - " + tt.member + "\n    - {name: after, kind: f32}\n"
			s, err := LoadSchema(strings.NewReader(doc))
			require.NoError(t, err)
			members, err := s.Shape("T")
			require.NoError(t, err)
			off, ok := NewResolver(s.PointerSize).Place(members).Offset("after")
			require.True(t, ok)
			assert.Equal(t, tt.wantAfter, off)
		})
	}

	t.Run("pointer matching declared width", func(t *testing.T) {
		s, err := load(t, 4, "{name: p, kind: pointer, size: 4}")
		require.NoError(t, err)
		members, err := s.Shape("T")
		require.NoError(t, err)
		assert.Equal(t, uintptr(4), members[0].Size)
	})

	rejected := []struct {
		name    string
		ptr     int
		member  string
		wantErr string
	}{
		{"negative size", 0, "{name: m, kind: u32, size: -4}", "negative"},
		{"align not a power of two", 0, "{name: m, kind: u32, align: 3}", "power of two"},
		{"negative align", 0, "{name: m, kind: u32, align: -2}", "power of two"},
		{"smaller than kind", 0, "{name: m, kind: f64, size: 4}", "smaller than f64"},
		{"pointer wider than platform", 4, "{name: m, kind: pointer, size: 8}", "pointer width 4"},
		{"size on optional", 0, "{name: m, kind: optional, size: 8, elem: {name: v, kind: u32}}", "derived"},
		{"size not multiple of align", 0, "{name: m, kind: vec3, align: 16}", "not a multiple"},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.ptr, tt.member)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Contains(t, err.Error(), "T.m")
		})
	}

	t.Run("size on aggregate", func(t *testing.T) {
		doc := "types:\n  Inner:\n    - {name: x, kind: u8}\n  T:\n    - {name: m, type: Inner, size: 8}\n"
		_, err := LoadSchema(strings.NewReader(doc))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "derived")
	})
}

func TestShapeUnknownType(t *testing.T) {
	_, err := DefaultSchema().Shape("Aircraft")
	assert.Error(t, err)
}
