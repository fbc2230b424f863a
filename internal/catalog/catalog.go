// Package catalog maps stable names to command and observer types, so
// commands can be dispatched and bindings declared from outside Go code (the
// CLI, binding manifests, harness scenarios).
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/roach88/hookrun/internal/engine"
)

// Command describes one named command.
type Command struct {
	Name string

	// Type is the handler pointer type, the command's identity.
	Type reflect.Type

	// Input is the type JSON input decodes into. Pointer input types decode
	// into a freshly allocated value and are passed by reference. A nil Input
	// means the command takes no input.
	Input reflect.Type
}

// Catalog is a name table for commands and observers.
//
// Thread-safety: safe for concurrent use.
type Catalog struct {
	mu        sync.RWMutex
	commands  map[string]Command
	observers map[string]reflect.Type
	names     map[reflect.Type]string
}

// New creates an empty Catalog.
func New() *Catalog {
	return &Catalog{
		commands:  make(map[string]Command),
		observers: make(map[string]reflect.Type),
		names:     make(map[reflect.Type]string),
	}
}

// AddCommand registers a command under name. handler must be a type
// implementing engine.Handler.
func (c *Catalog) AddCommand(name string, handler, input reflect.Type) error {
	if name == "" {
		return fmt.Errorf("command name is empty")
	}
	if handler == nil || !handler.Implements(reflect.TypeFor[engine.Handler]()) {
		return fmt.Errorf("command %q: %v does not implement engine.Handler", name, handler)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.commands[name]; exists {
		return fmt.Errorf("command %q already registered", name)
	}
	c.commands[name] = Command{Name: name, Type: handler, Input: input}
	c.names[handler] = name
	return nil
}

// AddObserver registers an observer or gate type under name.
func (c *Catalog) AddObserver(name string, observer reflect.Type) error {
	if name == "" {
		return fmt.Errorf("observer name is empty")
	}
	if observer == nil {
		return fmt.Errorf("observer %q: nil type", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.observers[name]; exists {
		return fmt.Errorf("observer %q already registered", name)
	}
	c.observers[name] = observer
	if _, named := c.names[observer]; !named {
		c.names[observer] = name
	}
	return nil
}

// Command looks up a command by name.
func (c *Catalog) Command(name string) (Command, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cmd, ok := c.commands[name]
	return cmd, ok
}

// Observer looks up an observer type by name.
func (c *Catalog) Observer(name string) (reflect.Type, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.observers[name]
	return t, ok
}

// Commands returns every command, sorted by name.
func (c *Catalog) Commands() []Command {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Command, 0, len(c.commands))
	for _, cmd := range c.commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Name returns the catalog name of t, falling back to engine.CommandName.
// It implements engine.Namer.
func (c *Catalog) Name(t reflect.Type) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if name, ok := c.names[t]; ok {
		return name
	}
	return engine.CommandName(t)
}

// DecodeInput decodes raw JSON into the named command's input type. Unknown
// fields are rejected. Empty input yields the zero value (nil for pointer
// input types).
func (c *Catalog) DecodeInput(name string, raw []byte) (any, error) {
	cmd, ok := c.Command(name)
	if !ok {
		return nil, fmt.Errorf("unknown command %q", name)
	}
	if cmd.Input == nil {
		return nil, nil
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return reflect.Zero(cmd.Input).Interface(), nil
	}

	target := cmd.Input
	if target.Kind() == reflect.Pointer {
		target = target.Elem()
	}
	ptr := reflect.New(target)

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(ptr.Interface()); err != nil {
		return nil, fmt.Errorf("decode %s input: %w", name, err)
	}

	if cmd.Input.Kind() == reflect.Pointer {
		return ptr.Interface(), nil
	}
	return ptr.Elem().Interface(), nil
}
