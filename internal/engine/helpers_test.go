package engine

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/roach88/hookrun/internal/record"
	"github.com/roach88/hookrun/internal/registry"
)

var (
	errDenied   = errors.New("denied")
	errRejected = errors.New("rejected")
	errBoom     = errors.New("boom")
	errAudit    = errors.New("audit failed")
)

// journal records the order in which handlers and hooks execute.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(e string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string{}, j.entries...)
}

type userInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type createUser struct {
	BaseHandler
	j     *journal
	calls atomic.Int32
	fail  error
}

func (h *createUser) Handle(ctx context.Context, input any) (any, error) {
	h.calls.Add(1)
	in, err := As[*userInput](input)
	if err != nil {
		return nil, err
	}
	h.j.add("createUser.handle:" + in.Name)
	if h.fail != nil {
		return nil, h.fail
	}
	return "user:" + in.Name, nil
}

type userSubscribe struct {
	j *journal
}

func (h *userSubscribe) Handle(ctx context.Context, input any) (any, error) {
	h.j.add("userSubscribe.handle")
	return "subscribed", nil
}

type sendEmail struct {
	j *journal
}

func (h *sendEmail) Handle(ctx context.Context, input any) (any, error) {
	h.j.add("sendEmail.handle")
	return nil, nil
}

type orderedHooks struct {
	j *journal
}

func (o *orderedHooks) Low(ctx context.Context, in *userInput, res any) error {
	o.j.add("low")
	return nil
}

func (o *orderedHooks) Mid(ctx context.Context, in *userInput, res any) error {
	o.j.add("mid")
	return nil
}

func (o *orderedHooks) High(ctx context.Context, in *userInput, res any) error {
	o.j.add("high")
	return nil
}

func (o *orderedHooks) A(ctx context.Context, in *userInput, res any) error {
	o.j.add("A")
	return nil
}

func (o *orderedHooks) B(ctx context.Context, in *userInput, res any) error {
	o.j.add("B")
	return nil
}

// subscriber and mailer chain CreateUser -> UserSubscribe -> SendEmail.
type subscriber struct {
	j *journal
}

func (s *subscriber) OnUserCreated(ctx context.Context, in *userInput, res any, r *Runner) error {
	s.j.add("subscriber.after")
	_, err := r.Run(ctx, CommandType[*userSubscribe](), in)
	return err
}

type mailer struct {
	j *journal
}

func (m *mailer) OnSubscribed(ctx context.Context, in *userInput, res any, r *Runner) error {
	m.j.add("mailer.after")
	_, err := r.Run(ctx, CommandType[*sendEmail](), in)
	return err
}

type allowGate struct {
	j *journal
}

func (g *allowGate) Use(ctx context.Context, input any, r *Runner) error {
	if r == nil {
		return errors.New("gate got no runner")
	}
	g.j.add("gate")
	return nil
}

type denyGate struct{}

func (*denyGate) Use(ctx context.Context, input any, r *Runner) error {
	return errDenied
}

type normalizer struct {
	j *journal
}

func (n *normalizer) Lowercase(ctx context.Context, in *userInput) error {
	in.Name = strings.ToLower(in.Name)
	n.j.add("before")
	return nil
}

func (n *normalizer) Reject(ctx context.Context, in *userInput) error {
	return errRejected
}

func (n *normalizer) Variadic(ctx context.Context, in ...*userInput) error {
	return nil
}

func (n *normalizer) NoContext(in *userInput) error {
	return nil
}

type auditor struct {
	j    *journal
	fail error
}

func (a *auditor) OnCreate(ctx context.Context, in *userInput, res string) error {
	a.j.add("audit:" + res)
	return a.fail
}

type valueHooks struct{}

func (valueHooks) Check(ctx context.Context, in *userInput) error {
	return nil
}

// fixture wires one isolated registry and runner with a fixed set of
// instances.
type fixture struct {
	reg     *registry.Registry
	d       *Declarer
	j       *journal
	create  *createUser
	auditor *auditor
	runner  *Runner
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	j := &journal{}
	f := &fixture{
		reg:     registry.New(),
		j:       j,
		create:  &createUser{j: j},
		auditor: &auditor{j: j},
	}
	f.d = Declare(f.reg)

	res := resolverWith(
		f.create,
		f.auditor,
		&userSubscribe{j: j},
		&sendEmail{j: j},
		&orderedHooks{j: j},
		&subscriber{j: j},
		&mailer{j: j},
		&allowGate{j: j},
		&normalizer{j: j},
	)

	base := []Option{
		WithRegistry(f.reg),
		WithResolver(res),
		WithLogger(slog.New(slog.DiscardHandler)),
	}
	f.runner = New(append(base, opts...)...)
	return f
}

func (f *fixture) run(t *testing.T, name string) (any, error) {
	t.Helper()
	return f.runner.Run(context.Background(), CommandType[*createUser](), &userInput{Name: name})
}

// resolverWith serves the given instances by their dynamic type and falls
// back to a DefaultResolver for everything else.
func resolverWith(instances ...any) Resolver {
	m := make(map[reflect.Type]any, len(instances))
	for _, inst := range instances {
		m[reflect.TypeOf(inst)] = inst
	}
	fallback := NewDefaultResolver()
	return ResolverFunc(func(ctx context.Context, t reflect.Type) (any, error) {
		if inst, ok := m[t]; ok {
			return inst, nil
		}
		return fallback.Get(ctx, t)
	})
}

// probe is a command whose handler calls whatever probeFn holds.
type probe struct{}

func (*probe) Handle(ctx context.Context, input any) (any, error) {
	probeFn.call(ctx)
	return nil, nil
}

func probeType() reflect.Type {
	return CommandType[*probe]()
}

type probeHook struct {
	mu sync.Mutex
	fn func(context.Context)
}

func (p *probeHook) Store(fn func(context.Context)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fn = fn
}

func (p *probeHook) call(ctx context.Context) {
	p.mu.Lock()
	fn := p.fn
	p.mu.Unlock()
	if fn != nil {
		fn(ctx)
	}
}

var probeFn probeHook

// memRecorder keeps trace records in memory.
type memRecorder struct {
	mu          sync.Mutex
	invocations []record.Invocation
	completions []record.Completion
	fail        error
}

func (m *memRecorder) RecordInvocation(ctx context.Context, inv record.Invocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.invocations = append(m.invocations, inv)
	return nil
}

func (m *memRecorder) RecordCompletion(ctx context.Context, comp record.Completion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.completions = append(m.completions, comp)
	return nil
}
