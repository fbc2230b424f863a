package manifest

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hookrun/internal/catalog"
	"github.com/roach88/hookrun/internal/engine"
	"github.com/roach88/hookrun/internal/registry"
)

type note struct {
	Text string `json:"text"`
}

type addNote struct{}

func (*addNote) Handle(ctx context.Context, input any) (any, error) {
	n, err := engine.As[*note](input)
	if err != nil {
		return nil, err
	}
	return n.Text, nil
}

type noEmpty struct{}

func (*noEmpty) Use(ctx context.Context, input any, r *engine.Runner) error {
	if n, _ := input.(*note); n == nil || strings.TrimSpace(n.Text) == "" {
		return errors.New("empty note")
	}
	return nil
}

type noteHooks struct {
	logged []string
}

func (h *noteHooks) Trim(ctx context.Context, n *note) error {
	n.Text = strings.TrimSpace(n.Text)
	return nil
}

func (h *noteHooks) Log(ctx context.Context, n *note, res string) error {
	h.logged = append(h.logged, res)
	return nil
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c := catalog.New()
	require.NoError(t, c.AddCommand("AddNote", engine.CommandType[*addNote](), reflect.TypeFor[*note]()))
	require.NoError(t, c.AddObserver("NoEmpty", reflect.TypeFor[*noEmpty]()))
	require.NoError(t, c.AddObserver("NoteHooks", reflect.TypeFor[*noteHooks]()))
	return c
}

func TestLoad_File(t *testing.T) {
	m, err := Load(filepath.Join("testdata", "bindings.cue"))
	require.NoError(t, err)

	assert.Equal(t, []Entry{
		{Command: "AddNote", Kind: "middleware", Observer: "NoEmpty", Priority: 10},
		{Command: "AddNote", Kind: "before", Observer: "NoteHooks", Method: "Trim"},
		{Command: "AddNote", Kind: "after", Observer: "NoteHooks", Method: "Log", Priority: -1},
	}, m.Bindings)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.cue"))

	var me *Error
	require.True(t, errors.As(err, &me))
	assert.Equal(t, ErrCodeRead, me.Code)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
	}{
		{
			name: "syntax error",
			src:  `bindings: [ {command: }`,
			code: ErrCodeBuild,
		},
		{
			name: "unknown kind",
			src:  `bindings: [{command: "AddNote", kind: "around", observer: "NoteHooks"}]`,
			code: ErrCodeSchema,
		},
		{
			name: "missing observer",
			src:  `bindings: [{command: "AddNote", kind: "before"}]`,
			code: ErrCodeSchema,
		},
		{
			name: "unknown field",
			src:  `bindings: [{command: "AddNote", kind: "before", observer: "NoteHooks", method: "Trim", weight: 3}]`,
			code: ErrCodeSchema,
		},
		{
			name: "non-integer priority",
			src:  `bindings: [{command: "AddNote", kind: "before", observer: "NoteHooks", method: "Trim", priority: 1.5}]`,
			code: ErrCodeSchema,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("test.cue", []byte(tt.src))

			var me *Error
			require.True(t, errors.As(err, &me), "got %v", err)
			assert.Equal(t, tt.code, me.Code)
		})
	}
}

func TestApply_DispatchesThroughManifestBindings(t *testing.T) {
	m, err := Load(filepath.Join("testdata", "bindings.cue"))
	require.NoError(t, err)

	reg := registry.New()
	n, err := m.Apply(testCatalog(t), reg)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, reg.Len())

	hooks := &noteHooks{}
	res := engine.NewDefaultResolver()
	r := engine.New(
		engine.WithRegistry(reg),
		engine.WithResolver(engine.ResolverFunc(func(ctx context.Context, t reflect.Type) (any, error) {
			if t == reflect.TypeFor[*noteHooks]() {
				return hooks, nil
			}
			return res.Get(ctx, t)
		})),
	)

	out, err := r.Run(context.Background(), engine.CommandType[*addNote](), &note{Text: "  hi  "})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
	assert.Equal(t, []string{"hi"}, hooks.logged)

	_, err = r.Run(context.Background(), engine.CommandType[*addNote](), &note{Text: "   "})
	assert.EqualError(t, err, "empty note")
}

func TestApply_AllOrNothing(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
	}{
		{
			name: "unknown command",
			src: `bindings: [
				{command: "AddNote", kind: "before", observer: "NoteHooks", method: "Trim"},
				{command: "DeleteNote", kind: "before", observer: "NoteHooks", method: "Trim"},
			]`,
			code: ErrCodeUnknownCommand,
		},
		{
			name: "unknown observer",
			src: `bindings: [
				{command: "AddNote", kind: "before", observer: "NoteHooks", method: "Trim"},
				{command: "AddNote", kind: "before", observer: "Spellcheck", method: "Check"},
			]`,
			code: ErrCodeUnknownObserver,
		},
		{
			name: "wrong hook shape",
			src: `bindings: [
				{command: "AddNote", kind: "before", observer: "NoteHooks", method: "Trim"},
				{command: "AddNote", kind: "before", observer: "NoteHooks", method: "Log"},
			]`,
			code: ErrCodeInvalidBinding,
		},
		{
			name: "middleware off Handle",
			src: `bindings: [
				{command: "AddNote", kind: "middleware", observer: "NoEmpty", method: "Validate"},
			]`,
			code: ErrCodeInvalidBinding,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse("test.cue", []byte(tt.src))
			require.NoError(t, err)

			reg := registry.New()
			_, err = m.Apply(testCatalog(t), reg)

			var me *Error
			require.True(t, errors.As(err, &me), "got %v", err)
			assert.Equal(t, tt.code, me.Code)
			assert.Equal(t, 0, reg.Len(), "nothing registered")
		})
	}
}

func TestError_Format(t *testing.T) {
	err := &Error{Code: ErrCodeUnknownCommand, Message: `unknown command "X"`, Index: 2}
	assert.Equal(t, `M101: bindings[2]: unknown command "X"`, err.Error())

	err = &Error{Code: ErrCodeRead, Message: "no such file", Index: -1}
	assert.Equal(t, "M001: no such file", err.Error())
}
