package testbed

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/jglrxavpok/carrot-handles/bridge"
	"github.com/jglrxavpok/carrot-handles/handle"
	"github.com/jglrxavpok/carrot-handles/metrics"
	"github.com/jglrxavpok/carrot-handles/scenario"
	"github.com/jglrxavpok/carrot-handles/scene"
)

func callGuest(t *testing.T, ctx context.Context, mod api.Module, name string, id handle.ID) bool {
	t.Helper()
	results, err := mod.ExportedFunction(name).Call(ctx, uint64(id))
	if err != nil {
		t.Fatalf("%s(%v): %v", name, id, err)
	}
	return results[0] == 1
}

func TestGuest_KeepsLightAlive(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	s := scene.New(scene.Options{})
	host := bridge.New(s.Lighting().Storage(), bridge.Options{Locker: s})
	if _, err := host.Instantiate(ctx, r); err != nil {
		t.Fatalf("instantiate host: %v", err)
	}
	defer host.Close(ctx)

	guest, err := r.Instantiate(ctx, guestModule(host.Module()))
	if err != nil {
		t.Fatalf("instantiate guest: %v", err)
	}
	defer guest.Close(ctx)

	s.Lock()
	sun := s.AddLight("sun", func(l *scene.Light) { l.Enabled = true })
	id := sun.ID()
	s.Unlock()

	if !callGuest(t, ctx, guest, "hold", id) {
		t.Fatal("guest could not retain a live light")
	}

	s.Lock()
	sun.Release()
	res := s.Tick()
	s.Unlock()
	if res.Lights != 0 {
		t.Fatal("light held by the guest was reclaimed")
	}
	if len(res.Frame.Active) != 1 {
		t.Fatalf("active lights = %d, want 1", len(res.Frame.Active))
	}

	if !callGuest(t, ctx, guest, "drop", id) {
		t.Fatal("guest could not release its handle")
	}
	if callGuest(t, ctx, guest, "drop", id) {
		t.Fatal("guest released a handle it no longer holds")
	}

	s.Lock()
	res = s.Tick()
	s.Unlock()
	if res.Lights != 1 {
		t.Fatalf("lights reclaimed = %d, want 1", res.Lights)
	}

	// The ID is stale now; the guest cannot resurrect it.
	if callGuest(t, ctx, guest, "hold", id) {
		t.Fatal("guest retained a reclaimed light")
	}
}

func TestGuest_CloseReleasesLeakedHandles(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	s := scene.New(scene.Options{})
	host := bridge.New(s.Meshes(), bridge.Options{Locker: s})
	if _, err := host.Instantiate(ctx, r); err != nil {
		t.Fatalf("instantiate host: %v", err)
	}
	guest, err := r.Instantiate(ctx, guestModule(host.Module()))
	if err != nil {
		t.Fatalf("instantiate guest: %v", err)
	}

	s.Lock()
	cube := s.AddMesh("cube", 36)
	id := cube.ID()
	cube.Release()
	s.Unlock()

	for i := 0; i < 3; i++ {
		callGuest(t, ctx, guest, "hold", id)
	}
	if host.HeldTotal() != 3 {
		t.Fatalf("HeldTotal = %d, want 3", host.HeldTotal())
	}

	guest.Close(ctx)
	if err := host.Close(ctx); err != nil {
		t.Fatalf("close host: %v", err)
	}

	s.Lock()
	res := s.Tick()
	s.Unlock()
	if res.Meshes != 1 {
		t.Fatalf("meshes reclaimed = %d, want 1", res.Meshes)
	}
}

func TestScenario_WithMetrics(t *testing.T) {
	ctx := context.Background()
	sc, err := scenario.Load("../scenario/testdata/cascade.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	reg := prometheus.NewRegistry()
	var rec *metrics.TickRecorder
	r, err := scenario.NewRunner(ctx, sc, scenario.Options{
		OnTick: func(res scene.TickResult) { rec.Observe(res) },
	})
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	defer r.Close(ctx)

	s := r.Scene()
	reg.MustRegister(metrics.NewCollector(metrics.Options{Locker: s}, s.Sources()...))
	rec = metrics.NewTickRecorder(reg, metrics.Options{})

	// Scrape concurrently with playback; the collector takes the scene lock.
	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				if _, err := reg.Gather(); err != nil {
					t.Errorf("gather: %v", err)
					return
				}
			}
		}
	}()

	err = r.Run(ctx)
	close(done)
	wg.Wait()
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	expected := `
# HELP carrot_handles_reclaimed_total Objects destroyed by cleanup.
# TYPE carrot_handles_reclaimed_total counter
carrot_handles_reclaimed_total{storage="instances"} 2
carrot_handles_reclaimed_total{storage="lights"} 0
carrot_handles_reclaimed_total{storage="meshes"} 2
# HELP carrot_handles_ticks_total Scene ticks run.
# TYPE carrot_handles_ticks_total counter
carrot_handles_ticks_total 3
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"carrot_handles_reclaimed_total", "carrot_handles_ticks_total"); err != nil {
		t.Fatal(err)
	}
}

func TestHandles_ChurnReusesSlots(t *testing.T) {
	lights := handle.NewStorageWithOptions[scene.Light](handle.Options{Name: "lights", BankSize: 8})

	seen := map[handle.ID]bool{}
	for round := 0; round < 10; round++ {
		var hs []handle.Handle[scene.Light]
		for i := 0; i < 8; i++ {
			h := lights.Emplace(nil)
			if seen[h.ID()] {
				t.Fatalf("round %d: ID %v handed out twice", round, h.ID())
			}
			seen[h.ID()] = true
			hs = append(hs, h)
		}
		for i := range hs {
			hs[i].Release()
		}
		lights.Cleanup()
	}

	st := lights.Stats()
	if st.Slots != 8 {
		t.Fatalf("Slots = %d, want 8 (slots should be reused)", st.Slots)
	}
	if st.Emplaced != 80 || st.Reclaimed != 80 {
		t.Fatalf("Emplaced = %d, Reclaimed = %d, want 80/80", st.Emplaced, st.Reclaimed)
	}
	for _, info := range lights.Snapshot() {
		if info.Generation != 10 || info.Present {
			t.Fatalf("slot %d: generation %d present %v", info.Index, info.Generation, info.Present)
		}
	}
}
