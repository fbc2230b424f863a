package engine

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hookrun/internal/registry"
)

func TestDeclarer_RegistersBindings(t *testing.T) {
	reg := registry.New()
	d := Declare(reg)
	cmd := CommandType[*createUser]()

	require.NoError(t, d.Use(cmd, HandleMethod, reflect.TypeFor[*allowGate](), WithPriority(3)))
	require.NoError(t, d.Before(cmd, reflect.TypeFor[*normalizer](), "Lowercase"))
	require.NoError(t, d.After(cmd, reflect.TypeFor[*auditor](), "OnCreate", WithPriority(-2)))

	mw := reg.Lookup(registry.KindMiddleware, cmd)
	require.Len(t, mw, 1)
	assert.Equal(t, UseMethod, mw[0].Method)
	assert.Equal(t, reflect.TypeFor[*allowGate](), mw[0].Observer)
	assert.Equal(t, 3, mw[0].Priority)

	before := reg.Lookup(registry.KindBefore, cmd)
	require.Len(t, before, 1)
	assert.Equal(t, "Lowercase", before[0].Method)
	assert.Equal(t, 0, before[0].Priority)

	after := reg.Lookup(registry.KindAfter, cmd)
	require.Len(t, after, 1)
	assert.Equal(t, -2, after[0].Priority)
	assert.Equal(t, cmd, after[0].Observed)
}

func TestDeclarer_Rejections(t *testing.T) {
	cmd := CommandType[*createUser]()
	notHandler := reflect.TypeFor[*journal]()

	tests := []struct {
		name    string
		declare func(d *Declarer) error
		code    ConfigErrorCode
	}{
		{
			name: "middleware on a method other than Handle",
			declare: func(d *Declarer) error {
				return d.Use(cmd, "Validate", reflect.TypeFor[*allowGate]())
			},
			code: ErrCodeNotGate,
		},
		{
			name: "gate without Use",
			declare: func(d *Declarer) error {
				return d.Use(cmd, HandleMethod, reflect.TypeFor[*normalizer]())
			},
			code: ErrCodeNotGate,
		},
		{
			name: "nil gate",
			declare: func(d *Declarer) error {
				return d.Use(cmd, HandleMethod, nil)
			},
			code: ErrCodeNotGate,
		},
		{
			name: "command type is not a handler",
			declare: func(d *Declarer) error {
				return d.Before(notHandler, reflect.TypeFor[*normalizer](), "Lowercase")
			},
			code: ErrCodeNotHandler,
		},
		{
			name: "missing method",
			declare: func(d *Declarer) error {
				return d.Before(cmd, reflect.TypeFor[*normalizer](), "Nope")
			},
			code: ErrCodeMissingMethod,
		},
		{
			name: "nil observer",
			declare: func(d *Declarer) error {
				return d.After(cmd, nil, "OnCreate")
			},
			code: ErrCodeMissingMethod,
		},
		{
			name: "after-shaped method as before hook",
			declare: func(d *Declarer) error {
				return d.Before(cmd, reflect.TypeFor[*orderedHooks](), "Low")
			},
			code: ErrCodeBadSignature,
		},
		{
			name: "before-shaped method as after hook",
			declare: func(d *Declarer) error {
				return d.After(cmd, reflect.TypeFor[*normalizer](), "Lowercase")
			},
			code: ErrCodeBadSignature,
		},
		{
			name: "variadic hook",
			declare: func(d *Declarer) error {
				return d.Before(cmd, reflect.TypeFor[*normalizer](), "Variadic")
			},
			code: ErrCodeBadSignature,
		},
		{
			name: "hook without context",
			declare: func(d *Declarer) error {
				return d.Before(cmd, reflect.TypeFor[*normalizer](), "NoContext")
			},
			code: ErrCodeBadSignature,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := registry.New()
			err := tt.declare(Declare(reg))

			require.Error(t, err)
			assert.True(t, HasConfigCode(err, tt.code), "got %v", err)
			assert.Equal(t, 0, reg.Len(), "rejected declarations register nothing")
		})
	}
}

func TestDeclarer_Bind(t *testing.T) {
	reg := registry.New()
	d := Declare(reg)
	cmd := CommandType[*createUser]()

	require.NoError(t, d.Bind(registry.KindMiddleware, cmd, reflect.TypeFor[*allowGate](), HandleMethod))
	require.NoError(t, d.Bind(registry.KindBefore, cmd, reflect.TypeFor[*normalizer](), "Lowercase"))
	require.NoError(t, d.Bind(registry.KindAfter, cmd, reflect.TypeFor[*auditor](), "OnCreate"))
	assert.Error(t, d.Bind(registry.Kind(0), cmd, reflect.TypeFor[*auditor](), "OnCreate"))

	assert.Equal(t, 3, reg.Len())
}

func TestDeclarer_MustPanics(t *testing.T) {
	d := Declare(registry.New())
	cmd := CommandType[*createUser]()

	assert.Panics(t, func() { d.MustUse(cmd, "Other", reflect.TypeFor[*allowGate]()) })
	assert.Panics(t, func() { d.MustBefore(cmd, reflect.TypeFor[*normalizer](), "Nope") })
	assert.Panics(t, func() { d.MustAfter(cmd, reflect.TypeFor[*normalizer](), "Lowercase") })
	assert.NotPanics(t, func() { d.MustAfter(cmd, reflect.TypeFor[*auditor](), "OnCreate") })
}

func TestDeclare_DefaultRegistry(t *testing.T) {
	reg := registry.Default()
	reg.Clear()
	t.Cleanup(reg.Clear)

	cmd := CommandType[*createUser]()
	require.NoError(t, Before(cmd, reflect.TypeFor[*normalizer](), "Lowercase"))
	require.NoError(t, After(cmd, reflect.TypeFor[*auditor](), "OnCreate"))
	require.NoError(t, Use(cmd, HandleMethod, reflect.TypeFor[*allowGate]()))

	assert.Equal(t, 3, reg.Len())
	assert.Same(t, reg, New().Registry())
}

func TestHookShape_RunnerParameter(t *testing.T) {
	m, ok := reflect.TypeFor[*subscriber]().MethodByName("OnUserCreated")
	require.True(t, ok)

	params, wantsRunner := hookParams(m.Type, 1)
	assert.True(t, wantsRunner)
	assert.Equal(t, []reflect.Type{reflect.TypeFor[*userInput](), reflect.TypeFor[any]()}, params)
	assert.NoError(t, checkHookShape(registry.KindAfter, m.Type, 1))

	bound := reflect.ValueOf(&subscriber{}).MethodByName("OnUserCreated").Type()
	assert.NoError(t, checkHookShape(registry.KindAfter, bound, 0))
	assert.Equal(t, contextType, bound.In(0))
}
