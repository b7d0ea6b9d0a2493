package scenario

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jglrxavpok/carrot-handles/errors"
	"github.com/jglrxavpok/carrot-handles/scene"
)

func errKind(t *testing.T, err error) errors.Kind {
	t.Helper()
	var herr *errors.Error
	if !stderrors.As(err, &herr) {
		t.Fatalf("error %v is not *errors.Error", err)
	}
	return herr.Kind
}

func TestParse(t *testing.T) {
	sc, err := Parse([]byte(`
name: small
bank_size: 4
steps:
  - mesh: {name: cube, vertices: 36}
  - light: {name: sun, type: spot, enabled: true, color: [1, 0.5, 0]}
  - tick: 2
  - expect: {meshes: 1}
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if sc.Name != "small" || sc.BankSize != 4 || len(sc.Steps) != 4 {
		t.Fatalf("unexpected scenario: %+v", sc)
	}

	kinds := []string{"mesh", "light", "tick", "expect"}
	for i, want := range kinds {
		if got := sc.Steps[i].Kind(); got != want {
			t.Errorf("step %d kind = %q, want %q", i, got, want)
		}
	}

	light := sc.Steps[1].Light
	if light.Type == nil || *light.Type != scene.LightSpot {
		t.Fatalf("light type = %v", light.Type)
	}
	if light.Color == nil || *light.Color != (scene.Vec3{1, 0.5, 0}) {
		t.Fatalf("light color = %v", light.Color)
	}
	if sc.Steps[2].Tick != 2 {
		t.Fatalf("tick = %d", sc.Steps[2].Tick)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		kind errors.Kind
	}{
		{"unknown field", "steps:\n  - explode: true\n", errors.KindInvalidData},
		{"empty step", "steps:\n  - {}\n", errors.KindInvalidData},
		{"two operations", "steps:\n  - {tick: 1, release: cube}\n", errors.KindInvalidData},
		{"mesh without name", "steps:\n  - mesh: {vertices: 3}\n", errors.KindInvalidData},
		{"negative tick", "steps:\n  - tick: -1\n", errors.KindInvalidData},
		{"unknown call", "steps:\n  - script: {call: explode, target: x}\n", errors.KindNotFound},
		{"bad light type", "steps:\n  - light: {name: l, type: area}\n", errors.KindInvalidData},
		{"negative bank size", "bank_size: -1\n", errors.KindInvalidData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errKind(t, err); got != tt.kind {
				t.Fatalf("kind = %s, want %s (%v)", got, tt.kind, err)
			}
		})
	}
}

func TestParse_Empty(t *testing.T) {
	sc, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil): %v", err)
	}
	if len(sc.Steps) != 0 {
		t.Fatalf("steps = %d", len(sc.Steps))
	}
}

func TestParseStep(t *testing.T) {
	step, err := ParseStep("release: cube")
	if err != nil {
		t.Fatalf("ParseStep: %v", err)
	}
	if step.Kind() != "release" || step.Release != "cube" {
		t.Fatalf("step = %+v", step)
	}

	step, err = ParseStep("instance: {name: crate, mesh: cube}")
	if err != nil {
		t.Fatalf("ParseStep: %v", err)
	}
	if step.Instance == nil || step.Instance.Mesh != "cube" {
		t.Fatalf("step = %+v", step)
	}

	if _, err := ParseStep(""); err == nil || errKind(t, err) != errors.KindInvalidInput {
		t.Fatalf("ParseStep(\"\") err = %v", err)
	}
	if _, err := ParseStep("mesh: ["); err == nil {
		t.Fatal("expected YAML error")
	}
}

func TestLoad(t *testing.T) {
	sc, err := Load("testdata/cascade.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sc.Name != "cascade" || sc.BankSize != 8 {
		t.Fatalf("scenario = %s/%d", sc.Name, sc.BankSize)
	}

	_, err = Load("testdata/missing.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	var herr *errors.Error
	if !stderrors.As(err, &herr) || herr.Phase != errors.PhaseLoad {
		t.Fatalf("err = %v, want load error", err)
	}
}

func TestRunner_Files(t *testing.T) {
	for _, file := range []string{"testdata/cascade.yaml", "testdata/script.yaml"} {
		t.Run(file, func(t *testing.T) {
			ctx := context.Background()
			sc, err := Load(file)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			r, err := NewRunner(ctx, sc, Options{})
			if err != nil {
				t.Fatalf("NewRunner: %v", err)
			}
			if err := r.Run(ctx); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if !r.Done() {
				t.Fatal("runner not done after Run")
			}
			if err := r.Close(ctx); err != nil {
				t.Fatalf("Close: %v", err)
			}

			st := r.Scene().Stats()
			if n := st.Meshes.Live + st.Instances.Live + st.Lights.Live; n != 0 {
				t.Fatalf("%d objects alive after Close", n)
			}
		})
	}
}

func TestRunner_StepAndHooks(t *testing.T) {
	ctx := context.Background()
	sc, err := Parse([]byte(`
steps:
  - mesh: {name: cube}
  - release: cube
  - tick: 3
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var ticks []uint64
	var steps []int
	r, err := NewRunner(ctx, sc, Options{
		OnTick: func(res scene.TickResult) { ticks = append(ticks, res.Tick) },
		OnStep: func(i int, _ Step) { steps = append(steps, i) },
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	defer r.Close(ctx)

	if err := r.Step(ctx); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if r.Position() != 1 || r.Done() {
		t.Fatalf("position = %d", r.Position())
	}
	if names := r.Names(); len(names["meshes"]) != 1 {
		t.Fatalf("Names = %v", names)
	}

	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ticks) != 3 || ticks[2] != 3 {
		t.Fatalf("ticks = %v", ticks)
	}
	if len(steps) != 3 {
		t.Fatalf("steps = %v", steps)
	}
	if r.LastTick().Tick != 3 {
		t.Fatalf("LastTick = %d", r.LastTick().Tick)
	}

	// Step past the end does nothing.
	if err := r.Step(ctx); err != nil {
		t.Fatalf("Step after done: %v", err)
	}
}

func TestRunner_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		kind errors.Kind
	}{
		{"unknown mesh", "steps:\n  - instance: {name: i, mesh: nope}\n", errors.KindNotFound},
		{"release unknown", "steps:\n  - release: nope\n", errors.KindNotFound},
		{"duplicate name", "steps:\n  - mesh: {name: a}\n  - light: {name: a}\n", errors.KindDuplicate},
		{"reuse released name", "steps:\n  - mesh: {name: a}\n  - release: a\n  - mesh: {name: a}\n", errors.KindDuplicate},
		{"failed expect", "steps:\n  - mesh: {name: a}\n  - expect: {meshes: 2}\n", errors.KindMismatch},
		{"failed script", "steps:\n  - mesh: {name: a}\n  - script: {call: ref-count, target: a, want: 5}\n", errors.KindMismatch},
		{"script unknown target", "steps:\n  - script: {call: valid, target: nope}\n", errors.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			sc, err := Parse([]byte(tt.doc))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			r, err := NewRunner(ctx, sc, Options{})
			if err != nil {
				t.Fatalf("NewRunner: %v", err)
			}
			defer r.Close(ctx)

			err = r.Run(ctx)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errKind(t, err); got != tt.kind {
				t.Fatalf("kind = %s, want %s (%v)", got, tt.kind, err)
			}
		})
	}
}

func TestRunner_Exec(t *testing.T) {
	ctx := context.Background()
	r, err := NewRunner(ctx, &Scenario{}, Options{})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	defer r.Close(ctx)

	for _, text := range []string{
		"mesh: {name: cube, vertices: 36}",
		"instance: {name: crate, mesh: cube}",
		"release: cube",
		"tick: 1",
		"expect: {meshes: 1, instances: 1}",
	} {
		step, err := ParseStep(text)
		if err != nil {
			t.Fatalf("ParseStep(%q): %v", text, err)
		}
		if err := r.Exec(ctx, step); err != nil {
			t.Fatalf("Exec(%q): %v", text, err)
		}
	}

	if err := r.Exec(ctx, Step{}); err == nil {
		t.Fatal("Exec of empty step should fail")
	}
}

func TestRunner_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sc, _ := Parse([]byte("steps:\n  - tick: 1\n"))
	r, err := NewRunner(ctx, sc, Options{})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	defer r.Close(context.Background())

	cancel()
	if err := r.Run(ctx); !stderrors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v, want context.Canceled", err)
	}
	if r.Position() != 0 {
		t.Fatal("step ran after cancel")
	}
}

func TestRunner_ConcurrentStep(t *testing.T) {
	const steps = 200
	ctx := context.Background()
	doc := "steps:\n" + strings.Repeat("  - tick: 1\n", steps)
	sc, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	seen := make([]int, steps)
	r, err := NewRunner(ctx, sc, Options{
		OnStep: func(i int, _ Step) { seen[i]++ },
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	defer r.Close(ctx)

	var wg sync.WaitGroup
	for g := 0; g < 2; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !r.Done() {
				if err := r.Step(ctx); err != nil {
					t.Errorf("Step: %v", err)
					return
				}
				_ = r.Position()
			}
		}()
	}
	wg.Wait()

	for i, n := range seen {
		if n != 1 {
			t.Fatalf("step %d ran %d times", i, n)
		}
	}
	if got := r.LastTick().Tick; got != steps {
		t.Fatalf("LastTick = %d, want %d", got, steps)
	}
}

func TestRunner_StepAfterClose(t *testing.T) {
	ctx := context.Background()
	sc, _ := Parse([]byte("steps:\n  - tick: 1\n"))
	r, err := NewRunner(ctx, sc, Options{})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if got := errKind(t, r.Step(ctx)); got != errors.KindInvalidInput {
		t.Fatalf("Step kind = %s", got)
	}
	if got := errKind(t, r.Exec(ctx, Step{Tick: 1})); got != errors.KindInvalidInput {
		t.Fatalf("Exec kind = %s", got)
	}
	if got := errKind(t, r.Run(ctx)); got != errors.KindInvalidInput {
		t.Fatalf("Run kind = %s", got)
	}
	if r.Position() != 0 {
		t.Fatal("step ran after Close")
	}
}

type failingHost struct{}

func (failingHost) Module() string { return "failing" }
func (failingHost) HeldTotal() int { return 0 }
func (failingHost) Instantiate(context.Context, wazero.Runtime) (api.Module, error) {
	return nil, stderrors.New("instantiate failed")
}
func (failingHost) Close(context.Context) error { return stderrors.New("close failed") }

func TestRunner_AbortLogsCloseError(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	SetLogger(zap.New(core))
	defer SetLogger(zap.NewNop())

	ctx := context.Background()
	r, err := NewRunner(ctx, &Scenario{Name: "broken"}, Options{})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	r.hosts = append(r.hosts, failingHost{})
	r.abort(ctx)

	entries := logs.FilterMessage("close after failed setup").All()
	if len(entries) != 1 {
		t.Fatalf("logged %d warnings, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["error"]; got != "close failed" {
		t.Fatalf("logged error = %v", got)
	}
}
