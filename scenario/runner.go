package scenario

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/jglrxavpok/carrot-handles/bridge"
	"github.com/jglrxavpok/carrot-handles/errors"
	"github.com/jglrxavpok/carrot-handles/handle"
	"github.com/jglrxavpok/carrot-handles/scene"
)

// Options configures a Runner.
type Options struct {
	// OnTick is called after every scene tick.
	OnTick func(scene.TickResult)

	// OnStep is called after every step that succeeds.
	OnStep func(index int, step Step)
}

type guestHost interface {
	Module() string
	Instantiate(ctx context.Context, r wazero.Runtime) (api.Module, error)
	HeldTotal() int
	Close(ctx context.Context) error
}

type target struct {
	storage string
	id      handle.ID
}

// Runner plays a scenario against a fresh scene.
//
// The runner locks the scene for every step, so the scene can be read
// concurrently (for example by a metrics scrape) as long as readers take
// scene.Lock too. Step, Exec and Close may be called from several
// goroutines; they run one at a time.
type Runner struct {
	sc    *Scenario
	opts  Options
	scene *scene.Scene

	runtime wazero.Runtime
	hosts   []guestHost
	modules map[string]api.Module

	meshes    map[string]handle.Handle[scene.Mesh]
	instances map[string]handle.Handle[scene.Instance]
	lights    map[string]handle.Handle[scene.Light]
	targets   map[string]target

	// mu serializes steps and Close. next is written under mu and read
	// without it by Done and Position.
	mu     sync.Mutex
	next   atomic.Int32
	closed bool
	last   scene.TickResult
}

// NewRunner creates a scene for sc and instantiates one bridge host per
// scene storage.
func NewRunner(ctx context.Context, sc *Scenario, opts Options) (*Runner, error) {
	s := scene.New(scene.Options{BankSize: sc.BankSize})
	r := &Runner{
		sc:        sc,
		opts:      opts,
		scene:     s,
		runtime:   wazero.NewRuntime(ctx),
		modules:   make(map[string]api.Module),
		meshes:    make(map[string]handle.Handle[scene.Mesh]),
		instances: make(map[string]handle.Handle[scene.Instance]),
		lights:    make(map[string]handle.Handle[scene.Light]),
		targets:   make(map[string]target),
	}

	r.hosts = []guestHost{
		bridge.New(s.Meshes(), bridge.Options{Locker: s}),
		bridge.New(s.Instances(), bridge.Options{Locker: s}),
		bridge.New(s.Lighting().Storage(), bridge.Options{Locker: s}),
	}
	for _, h := range r.hosts {
		mod, err := h.Instantiate(ctx, r.runtime)
		if err != nil {
			r.abort(ctx)
			return nil, err
		}
		r.modules[h.Module()] = mod
	}
	return r, nil
}

// Scene returns the scene being driven. Lock it before reading from
// another goroutine.
func (r *Runner) Scene() *scene.Scene {
	return r.scene
}

// Scenario returns the scenario being played.
func (r *Runner) Scenario() *Scenario {
	return r.sc
}

// Done reports whether every scripted step has run.
func (r *Runner) Done() bool {
	return r.Position() >= len(r.sc.Steps)
}

// Position returns the index of the next scripted step.
func (r *Runner) Position() int {
	return int(r.next.Load())
}

// LastTick returns the result of the most recent tick.
func (r *Runner) LastTick() scene.TickResult {
	r.scene.Lock()
	defer r.scene.Unlock()
	return r.last
}

// Names returns the objects the runner currently holds a handle to, by
// storage name.
func (r *Runner) Names() map[string][]string {
	r.scene.Lock()
	defer r.scene.Unlock()

	out := map[string][]string{}
	for name := range r.meshes {
		out["meshes"] = append(out["meshes"], name)
	}
	for name := range r.instances {
		out["instances"] = append(out["instances"], name)
	}
	for name := range r.lights {
		out["lights"] = append(out["lights"], name)
	}
	return out
}

// Step runs the next scripted step. Calling Step when Done is a no-op.
func (r *Runner) Step(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errClosed()
	}

	index := r.Position()
	if index >= len(r.sc.Steps) {
		return nil
	}
	step := r.sc.Steps[index]
	if err := r.exec(ctx, step, "steps", strconv.Itoa(index)); err != nil {
		return err
	}
	r.next.Add(1)
	if r.opts.OnStep != nil {
		r.opts.OnStep(index, step)
	}
	return nil
}

// Exec runs a step that is not part of the script.
func (r *Runner) Exec(ctx context.Context, step Step) error {
	if err := step.Validate("exec"); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errClosed()
	}
	return r.exec(ctx, step, "exec")
}

// Run plays the remaining steps, checking ctx between steps.
func (r *Runner) Run(ctx context.Context) error {
	for !r.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.Step(ctx); err != nil {
			return err
		}
	}
	Logger().Debug("scenario finished",
		zap.String("scenario", r.sc.Name),
		zap.Int("steps", len(r.sc.Steps)))
	return nil
}

// Close releases every named handle, closes the bridge hosts, runs a
// final tick and shuts down the WebAssembly runtime. Close waits for a
// running step to finish. Closing twice is a no-op.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var first error
	for _, h := range r.hosts {
		if err := h.Close(ctx); err != nil && first == nil {
			first = err
		}
	}

	r.scene.Lock()
	for name, h := range r.instances {
		h.Release()
		delete(r.instances, name)
	}
	for name, h := range r.meshes {
		h.Release()
		delete(r.meshes, name)
	}
	for name, h := range r.lights {
		h.Release()
		delete(r.lights, name)
	}
	r.last = r.scene.Tick()
	r.scene.Unlock()

	if err := r.runtime.Close(ctx); err != nil && first == nil {
		first = err
	}
	return first
}

// abort closes a runner whose setup failed. The setup error is what the
// caller sees, so a close error is only logged.
func (r *Runner) abort(ctx context.Context) {
	if err := r.Close(ctx); err != nil {
		Logger().Warn("close after failed setup",
			zap.String("scenario", r.sc.Name),
			zap.Error(err))
	}
}

func errClosed() error {
	return errors.New(errors.PhaseScenario, errors.KindInvalidInput).
		Detail("runner is closed").
		Build()
}

func (r *Runner) exec(ctx context.Context, step Step, path ...string) error {
	// Script calls lock the scene inside the bridge host.
	if step.Script != nil {
		return r.script(ctx, step.Script, path)
	}

	r.scene.Lock()
	defer r.scene.Unlock()

	switch {
	case step.Mesh != nil:
		if err := r.claim(step.Mesh.Name, path); err != nil {
			return err
		}
		h := r.scene.AddMesh(step.Mesh.Name, step.Mesh.Vertices)
		r.meshes[step.Mesh.Name] = h
		r.targets[step.Mesh.Name] = target{storage: r.scene.Meshes().Name(), id: h.ID()}

	case step.Instance != nil:
		mesh, ok := r.meshes[step.Instance.Mesh]
		if !ok {
			return r.notFound(path, "mesh", step.Instance.Mesh)
		}
		if err := r.claim(step.Instance.Name, path); err != nil {
			return err
		}
		h, err := r.scene.AddInstance(step.Instance.Name, mesh, step.Instance.Position)
		if err != nil {
			return err
		}
		r.instances[step.Instance.Name] = h
		r.targets[step.Instance.Name] = target{storage: r.scene.Instances().Name(), id: h.ID()}

	case step.Light != nil:
		if err := r.claim(step.Light.Name, path); err != nil {
			return err
		}
		h := r.scene.AddLight(step.Light.Name, step.Light.apply)
		r.lights[step.Light.Name] = h
		r.targets[step.Light.Name] = target{storage: r.scene.Lighting().Storage().Name(), id: h.ID()}

	case step.Release != "":
		if !r.release(step.Release) {
			return r.notFound(path, "held object", step.Release)
		}

	case step.Tick > 0:
		for i := 0; i < step.Tick; i++ {
			r.last = r.scene.Tick()
			if r.opts.OnTick != nil {
				r.opts.OnTick(r.last)
			}
		}

	case step.Expect != nil:
		return r.expect(step.Expect, path)
	}
	return nil
}

// claim rejects a name that was already used in this run. Released names
// stay reserved so script steps can still probe their stale IDs.
func (r *Runner) claim(name string, path []string) error {
	if _, ok := r.targets[name]; ok {
		return errors.Duplicate(errors.PhaseScenario, path, "object", name)
	}
	return nil
}

func (r *Runner) release(name string) bool {
	if h, ok := r.meshes[name]; ok {
		h.Release()
		delete(r.meshes, name)
		return true
	}
	if h, ok := r.instances[name]; ok {
		h.Release()
		delete(r.instances, name)
		return true
	}
	if h, ok := r.lights[name]; ok {
		h.Release()
		delete(r.lights, name)
		return true
	}
	return false
}

func (r *Runner) notFound(path []string, what, name string) error {
	return errors.New(errors.PhaseScenario, errors.KindNotFound).
		Path(path...).
		Detail("%s %q not found", what, name).
		Build()
}

func (r *Runner) expect(e *Expect, path []string) error {
	st := r.scene.Stats()
	checks := []struct {
		name string
		want *int
		got  int
	}{
		{"meshes", e.Meshes, st.Meshes.Live},
		{"instances", e.Instances, st.Instances.Live},
		{"lights", e.Lights, st.Lights.Live},
		{"pending", e.Pending, st.Meshes.Pending + st.Instances.Pending + st.Lights.Pending},
		{"reclaimed", e.Reclaimed, r.last.Reclaimed()},
		{"active_lights", e.ActiveLights, len(r.last.Frame.Active)},
	}
	for _, c := range checks {
		if c.want != nil && *c.want != c.got {
			return errors.Mismatch(errors.PhaseScenario, append(path, "expect", c.name), c.name, *c.want, c.got)
		}
	}
	if e.MeshFrees != nil && *e.MeshFrees != st.MeshFrees {
		return errors.Mismatch(errors.PhaseScenario, append(path, "expect", "mesh_frees"), "mesh_frees", *e.MeshFrees, st.MeshFrees)
	}
	return nil
}

func (r *Runner) script(ctx context.Context, s *ScriptStep, path []string) error {
	r.scene.Lock()
	t, ok := r.targets[s.Target]
	r.scene.Unlock()
	if !ok {
		return r.notFound(path, "object", s.Target)
	}

	mod, ok := r.modules[t.storage]
	if !ok {
		return errors.NotFound(errors.PhaseBridge, "host module", t.storage)
	}
	fn := mod.ExportedFunction(s.Call)
	if fn == nil {
		return errors.NotFound(errors.PhaseBridge, "bridge function", s.Call)
	}
	results, err := fn.Call(ctx, uint64(t.id))
	if err != nil {
		return errors.New(errors.PhaseBridge, errors.KindInvalidData).
			Path(path...).
			Cause(err).
			Detail("call %s.%s", t.storage, s.Call).
			Build()
	}

	got := int64(api.DecodeI32(results[0]))
	Logger().Debug("script call",
		zap.String("module", t.storage),
		zap.String("call", s.Call),
		zap.String("target", s.Target),
		zap.Stringer("id", t.id),
		zap.Int64("result", got))

	if s.Want != nil && *s.Want != got {
		return errors.Mismatch(errors.PhaseScenario, append(path, "script"),
			fmt.Sprintf("%s(%s)", s.Call, s.Target), *s.Want, got)
	}
	return nil
}

func (l *LightStep) apply(light *scene.Light) {
	if l.Type != nil {
		light.Type = *l.Type
	}
	light.Enabled = l.Enabled
	if l.Intensity != nil {
		light.Intensity = *l.Intensity
	}
	if l.Position != nil {
		light.Position = *l.Position
	}
	if l.Direction != nil {
		light.Direction = *l.Direction
	}
	if l.Color != nil {
		light.Color = *l.Color
	}
}
