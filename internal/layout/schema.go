package layout

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed shapes.yaml
var defaultShapes []byte

type fieldSpec struct {
	Name string     `yaml:"name"`
	Kind string     `yaml:"kind,omitempty"`
	Type string     `yaml:"type,omitempty"`
	Elem *fieldSpec `yaml:"elem,omitempty"`
	// Size and Align override the natural values, e.g. a four-byte bool.
	Size  int `yaml:"size,omitempty"`
	Align int `yaml:"align,omitempty"`
}

type schemaFile struct {
	PointerSize int                    `yaml:"pointer_size,omitempty"`
	Types       map[string][]fieldSpec `yaml:"types"`
}

// Schema holds the declared field shapes of foreign types, keyed by type name.
type Schema struct {
	PointerSize uintptr
	types       map[string][]fieldSpec
}

// DefaultSchema returns the shapes compiled into the binary.
func DefaultSchema() *Schema {
	s, err := LoadSchema(bytes.NewReader(defaultShapes))
	if err != nil {
		panic(fmt.Sprintf("embedded shapes.yaml: %v", err))
	}
	return s
}

// LoadSchemaFile reads a schema from a YAML file. An empty path yields the default schema.
func LoadSchemaFile(path string) (*Schema, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultSchema(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := LoadSchema(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// LoadSchema decodes and validates a YAML schema.
func LoadSchema(r io.Reader) (*Schema, error) {
	var raw schemaFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding shapes: %w", err)
	}
	if len(raw.Types) == 0 {
		return nil, fmt.Errorf("no types declared")
	}
	if raw.PointerSize < 0 {
		return nil, fmt.Errorf("pointer_size must not be negative, got %d", raw.PointerSize)
	}

	s := &Schema{
		PointerSize: uintptr(raw.PointerSize),
		types:       raw.Types,
	}
	// resolve everything once so broken references surface at load time
	for _, name := range s.Types() {
		if _, err := s.Shape(name); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Types lists the declared type names in sorted order.
func (s *Schema) Types() []string {
	names := make([]string, 0, len(s.types))
	for name := range s.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Shape returns the members of the named type with all type references expanded.
func (s *Schema) Shape(name string) ([]Field, error) {
	return s.shape(name, map[string]bool{})
}

func (s *Schema) shape(name string, visiting map[string]bool) ([]Field, error) {
	specs, ok := s.types[name]
	if !ok {
		return nil, fmt.Errorf("type %q is not declared", name)
	}
	if visiting[name] {
		return nil, fmt.Errorf("type %q contains itself by value", name)
	}
	visiting[name] = true
	defer delete(visiting, name)

	fields := make([]Field, 0, len(specs))
	for i, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("%s: member %d has no name", name, i)
		}
		f, err := s.field(spec, visiting)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", name, spec.Name, err)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func (s *Schema) field(spec fieldSpec, visiting map[string]bool) (Field, error) {
	f := Field{Name: spec.Name, TypeName: spec.Type}

	if spec.Kind == "" {
		if spec.Type == "" {
			return Field{}, fmt.Errorf("needs a kind or a type")
		}
		f.Kind = KindAggregate
	} else {
		k, err := ParseKind(spec.Kind)
		if err != nil {
			return Field{}, err
		}
		f.Kind = k
	}

	switch f.Kind {
	case KindAggregate:
		if spec.Type == "" {
			return Field{}, fmt.Errorf("aggregate needs a type reference")
		}
		members, err := s.shape(spec.Type, visiting)
		if err != nil {
			return Field{}, err
		}
		f.Members = members
	case KindOptional:
		if spec.Elem == nil {
			return Field{}, fmt.Errorf("optional needs an elem")
		}
		elem, err := s.field(*spec.Elem, visiting)
		if err != nil {
			return Field{}, fmt.Errorf("elem: %w", err)
		}
		f.Elem = &elem
	default:
		if spec.Elem != nil {
			return Field{}, fmt.Errorf("%s cannot carry an elem", f.Kind)
		}
	}

	if err := s.override(&f, spec); err != nil {
		return Field{}, err
	}
	return f, nil
}

// override applies explicit size and align values after checking them
// against what the kind allows.
func (s *Schema) override(f *Field, spec fieldSpec) error {
	if spec.Size == 0 && spec.Align == 0 {
		return nil
	}
	if spec.Size < 0 {
		return fmt.Errorf("size must not be negative, got %d", spec.Size)
	}
	if spec.Align < 0 || spec.Align&(spec.Align-1) != 0 {
		return fmt.Errorf("align must be a power of two, got %d", spec.Align)
	}

	r := NewResolver(s.PointerSize)
	natural := r.SizeOf(Field{Kind: f.Kind})
	switch {
	case spec.Size == 0:
	case !f.Kind.Primitive():
		return fmt.Errorf("size of %s is derived from its contents and cannot be set", f.Kind)
	case f.Kind == KindPointer && uintptr(spec.Size) != natural:
		return fmt.Errorf("pointer size %d does not match the pointer width %d", spec.Size, natural)
	case uintptr(spec.Size) < natural:
		return fmt.Errorf("size %d is smaller than %s (%d bytes)", spec.Size, f.Kind, natural)
	}

	f.Size = uintptr(spec.Size)
	f.Align = uintptr(spec.Align)
	if size, align := r.SizeOf(*f), r.AlignOf(*f); size%align != 0 {
		return fmt.Errorf("size %d is not a multiple of align %d", size, align)
	}
	return nil
}
