package scene

import (
	stderrors "errors"
	"testing"

	"github.com/jglrxavpok/carrot-handles/errors"
	"github.com/jglrxavpok/carrot-handles/handle"
)

func TestScene_InstanceKeepsMeshAlive(t *testing.T) {
	s := New(Options{})

	cube := s.AddMesh("cube", 36)
	inst, err := s.AddInstance("crate", cube, Vec3{0, 1, 0})
	if err != nil {
		t.Fatalf("AddInstance: %v", err)
	}
	if got := s.Meshes().SlotOf(cube).RefCount(); got != 2 {
		t.Fatalf("mesh RefCount = %d, want 2", got)
	}

	cube.Release()
	r := s.Tick()
	if r.Meshes != 0 {
		t.Fatalf("mesh reclaimed while instance holds it")
	}
	if !inst.Get().Mesh.Valid() {
		t.Fatal("instance mesh handle went stale")
	}

	inst.Release()
	r = s.Tick()
	if r.Instances != 1 || r.Meshes != 1 {
		t.Fatalf("tick reclaimed instances=%d meshes=%d, want 1 and 1", r.Instances, r.Meshes)
	}
	if st := s.Stats(); st.MeshFrees != 1 {
		t.Fatalf("MeshFrees = %d, want 1", st.MeshFrees)
	}
}

func TestScene_SharedMesh(t *testing.T) {
	s := New(Options{})

	cube := s.AddMesh("cube", 36)
	a, _ := s.AddInstance("a", cube, Vec3{})
	b, _ := s.AddInstance("b", cube, Vec3{})
	cube.Release()

	a.Release()
	if r := s.Tick(); r.Meshes != 0 {
		t.Fatal("mesh reclaimed while one instance remains")
	}

	b.Release()
	if r := s.Tick(); r.Meshes != 1 {
		t.Fatalf("Meshes reclaimed = %d, want 1", r.Meshes)
	}
}

func TestScene_AddInstanceRejectsBadMesh(t *testing.T) {
	s := New(Options{})

	var empty handle.Handle[Mesh]
	_, err := s.AddInstance("ghost", empty, Vec3{})
	var herr *errors.Error
	if !stderrors.As(err, &herr) || herr.Kind != errors.KindEmptyHandle {
		t.Fatalf("err = %v, want empty_handle", err)
	}

	other := New(Options{})
	foreign := other.AddMesh("foreign", 3)
	defer foreign.Release()
	_, err = s.AddInstance("ghost", foreign, Vec3{})
	if !stderrors.As(err, &herr) || herr.Kind != errors.KindStaleHandle {
		t.Fatalf("err = %v, want stale_handle", err)
	}

	if s.Instances().Len() != 0 {
		t.Fatal("failed AddInstance left an instance behind")
	}
}

func TestScene_TickCounter(t *testing.T) {
	s := New(Options{})
	for i := 1; i <= 3; i++ {
		if r := s.Tick(); r.Tick != uint64(i) {
			t.Fatalf("Tick = %d, want %d", r.Tick, i)
		}
	}
	if s.Stats().Tick != 3 {
		t.Fatalf("Stats.Tick = %d", s.Stats().Tick)
	}
}

func TestScene_Sources(t *testing.T) {
	s := New(Options{BankSize: 4})
	m := s.AddMesh("m", 3)
	defer m.Release()

	names := map[string]int{}
	for _, src := range s.Sources() {
		st := src.Stats()
		names[st.Name] = st.Live
	}
	want := map[string]int{"meshes": 1, "instances": 0, "lights": 0}
	for name, live := range want {
		got, ok := names[name]
		if !ok || got != live {
			t.Errorf("source %q live = %d (present %v), want %d", name, got, ok, live)
		}
	}
}

func TestParseLightType(t *testing.T) {
	tests := []struct {
		in   string
		want LightType
		err  bool
	}{
		{"point", LightPoint, false},
		{"Directional", LightDirectional, false},
		{"SPOT", LightSpot, false},
		{"area", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLightType(tt.in)
			if (err != nil) != tt.err {
				t.Fatalf("err = %v, want error %v", err, tt.err)
			}
			if got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}

	if LightSpot.String() != "Spot" {
		t.Fatalf("String = %q", LightSpot.String())
	}
}
