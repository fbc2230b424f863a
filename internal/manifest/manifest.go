// Package manifest loads binding declarations from CUE files.
//
// A manifest declares extra hooks by catalog name, on top of the bindings a
// program registers in Go:
//
//	bindings: [
//		{command: "CreateRecipe", kind: "middleware", observer: "RequireTitle"},
//		{command: "CreateRecipe", kind: "after", observer: "RecipeHooks", method: "Audit", priority: 5},
//	]
//
// Loading validates the whole manifest against a CUE schema, resolves every
// name through a catalog and checks every hook shape before any binding is
// registered. A manifest with one bad entry registers nothing.
package manifest

import (
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/hookrun/internal/catalog"
	"github.com/roach88/hookrun/internal/engine"
	"github.com/roach88/hookrun/internal/registry"
)

// Error codes for manifest failures.
const (
	ErrCodeRead            = "M001" // File could not be read
	ErrCodeBuild           = "M002" // CUE syntax or evaluation error
	ErrCodeSchema          = "M003" // Manifest does not match the schema
	ErrCodeUnknownCommand  = "M101" // Command name not in the catalog
	ErrCodeUnknownObserver = "M102" // Observer name not in the catalog
	ErrCodeInvalidBinding  = "M103" // Declaration rejected by the engine
)

// schema constrains a manifest. It is unified with every loaded file.
const schema = `
#Binding: {
	command:   string & !=""
	kind:      "middleware" | "before" | "after"
	observer:  string & !=""
	method?:   string & !=""
	priority:  *0 | int
}

bindings: [...#Binding]
`

// Entry is one declared binding.
type Entry struct {
	Command  string `json:"command"`
	Kind     string `json:"kind"`
	Observer string `json:"observer"`
	Method   string `json:"method,omitempty"`
	Priority int    `json:"priority"`
}

// Manifest is a parsed binding manifest.
type Manifest struct {
	Bindings []Entry `json:"bindings"`
}

// Error reports a manifest failure with its CUE source position when known.
type Error struct {
	Code    string
	Message string
	Pos     token.Pos
	Index   int // binding index, -1 when the error is not about one entry
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Index >= 0 {
		msg = fmt.Sprintf("%s: bindings[%d]: %s", e.Code, e.Index, e.Message)
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), msg)
	}
	return msg
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Code: ErrCodeRead, Message: err.Error(), Index: -1}
	}
	return Parse(path, data)
}

// Parse validates manifest source. filename is used in error positions.
func Parse(filename string, src []byte) (*Manifest, error) {
	ctx := cuecontext.New()

	schemaVal := ctx.CompileString(schema, cue.Filename("manifest-schema.cue"))
	if err := schemaVal.Err(); err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, cueError(ErrCodeBuild, err)
	}

	v = schemaVal.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError(ErrCodeSchema, err)
	}

	var m Manifest
	if err := v.Decode(&m); err != nil {
		return nil, cueError(ErrCodeSchema, err)
	}
	if m.Bindings == nil {
		m.Bindings = []Entry{}
	}
	return &m, nil
}

// Apply resolves every entry through cat and declares it into reg. Entries
// are validated against a scratch registry first, so a failure leaves reg
// unchanged. Returns the number of bindings registered.
func (m *Manifest) Apply(cat *catalog.Catalog, reg *registry.Registry) (int, error) {
	scratch := engine.Declare(registry.New())
	for i, e := range m.Bindings {
		if err := bind(scratch, cat, i, e); err != nil {
			return 0, err
		}
	}

	d := engine.Declare(reg)
	for i, e := range m.Bindings {
		if err := bind(d, cat, i, e); err != nil {
			return i, err
		}
	}
	return len(m.Bindings), nil
}

func bind(d *engine.Declarer, cat *catalog.Catalog, i int, e Entry) error {
	cmd, ok := cat.Command(e.Command)
	if !ok {
		return &Error{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unknown command %q", e.Command), Index: i}
	}
	observer, ok := cat.Observer(e.Observer)
	if !ok {
		return &Error{Code: ErrCodeUnknownObserver, Message: fmt.Sprintf("unknown observer %q", e.Observer), Index: i}
	}

	kind, err := registry.ParseKind(e.Kind)
	if err != nil {
		return &Error{Code: ErrCodeInvalidBinding, Message: err.Error(), Index: i}
	}

	method := e.Method
	if kind == registry.KindMiddleware && method == "" {
		method = engine.HandleMethod
	}

	if err := d.Bind(kind, cmd.Type, observer, method, engine.WithPriority(e.Priority)); err != nil {
		return &Error{Code: ErrCodeInvalidBinding, Message: err.Error(), Index: i}
	}
	return nil
}

func cueError(code string, err error) *Error {
	e := &Error{Code: code, Message: err.Error(), Index: -1}
	var cerr cueerrors.Error
	if errors.As(err, &cerr) {
		e.Pos = cerr.Position()
	}
	return e
}
