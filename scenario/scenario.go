package scenario

import (
	"bytes"
	stderrors "errors"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/jglrxavpok/carrot-handles/bridge"
	"github.com/jglrxavpok/carrot-handles/errors"
	"github.com/jglrxavpok/carrot-handles/scene"
)

// Scenario is a scripted sequence of scene operations.
type Scenario struct {
	Name     string `yaml:"name"`
	BankSize int    `yaml:"bank_size"`
	Steps    []Step `yaml:"steps"`
}

// Step is one scenario operation. Exactly one field is set.
type Step struct {
	Mesh     *MeshStep     `yaml:"mesh,omitempty"`
	Instance *InstanceStep `yaml:"instance,omitempty"`
	Light    *LightStep    `yaml:"light,omitempty"`
	Release  string        `yaml:"release,omitempty"`
	Tick     int           `yaml:"tick,omitempty"`
	Expect   *Expect       `yaml:"expect,omitempty"`
	Script   *ScriptStep   `yaml:"script,omitempty"`
}

// MeshStep creates a named mesh.
type MeshStep struct {
	Name     string `yaml:"name"`
	Vertices int    `yaml:"vertices"`
}

// InstanceStep creates a named instance of a named mesh.
type InstanceStep struct {
	Name     string     `yaml:"name"`
	Mesh     string     `yaml:"mesh"`
	Position scene.Vec3 `yaml:"position"`
}

// LightStep creates a named light. Unset fields keep the light defaults.
type LightStep struct {
	Name      string           `yaml:"name"`
	Type      *scene.LightType `yaml:"type"`
	Enabled   bool             `yaml:"enabled"`
	Intensity *float32         `yaml:"intensity"`
	Position  *scene.Vec3      `yaml:"position"`
	Direction *scene.Vec3      `yaml:"direction"`
	Color     *scene.Vec3      `yaml:"color"`
}

// Expect asserts scene counters. Unset fields are not checked.
type Expect struct {
	Meshes       *int    `yaml:"meshes"`
	Instances    *int    `yaml:"instances"`
	Lights       *int    `yaml:"lights"`
	Pending      *int    `yaml:"pending"`
	Reclaimed    *int    `yaml:"reclaimed"`
	ActiveLights *int    `yaml:"active_lights"`
	MeshFrees    *uint64 `yaml:"mesh_frees"`
}

// ScriptStep calls a bridge function on a named object through the
// WebAssembly host module of its storage.
type ScriptStep struct {
	Call   string `yaml:"call"`
	Target string `yaml:"target"`
	Want   *int64 `yaml:"want"`
}

// Kind returns the step's operation name.
func (s Step) Kind() string {
	switch {
	case s.Mesh != nil:
		return "mesh"
	case s.Instance != nil:
		return "instance"
	case s.Light != nil:
		return "light"
	case s.Release != "":
		return "release"
	case s.Tick != 0:
		return "tick"
	case s.Expect != nil:
		return "expect"
	case s.Script != nil:
		return "script"
	default:
		return ""
	}
}

func (s Step) count() int {
	n := 0
	for _, set := range []bool{
		s.Mesh != nil, s.Instance != nil, s.Light != nil, s.Release != "",
		s.Tick != 0, s.Expect != nil, s.Script != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// Validate checks that the step names exactly one well-formed operation.
func (s Step) Validate(path ...string) error {
	switch s.count() {
	case 0:
		return errors.InvalidData(errors.PhaseParse, path, "step has no operation")
	case 1:
	default:
		return errors.InvalidData(errors.PhaseParse, path, "step has more than one operation")
	}

	switch {
	case s.Mesh != nil:
		if s.Mesh.Name == "" {
			return errors.InvalidData(errors.PhaseParse, append(path, "mesh"), "name is required")
		}
		if s.Mesh.Vertices < 0 {
			return errors.InvalidData(errors.PhaseParse, append(path, "mesh"), "vertices must not be negative")
		}
	case s.Instance != nil:
		if s.Instance.Name == "" || s.Instance.Mesh == "" {
			return errors.InvalidData(errors.PhaseParse, append(path, "instance"), "name and mesh are required")
		}
	case s.Light != nil:
		if s.Light.Name == "" {
			return errors.InvalidData(errors.PhaseParse, append(path, "light"), "name is required")
		}
	case s.Tick < 0:
		return errors.InvalidData(errors.PhaseParse, append(path, "tick"), "tick count must be positive")
	case s.Script != nil:
		if s.Script.Target == "" {
			return errors.InvalidData(errors.PhaseParse, append(path, "script"), "target is required")
		}
		if !knownCall(s.Script.Call) {
			return errors.NotFound(errors.PhaseParse, "bridge function", s.Script.Call)
		}
	}
	return nil
}

func knownCall(name string) bool {
	for _, sig := range bridge.Signatures() {
		if sig.Name == name {
			return true
		}
	}
	return false
}

// Parse decodes and validates a scenario document.
func Parse(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil && !stderrors.Is(err, io.EOF) {
		return nil, errors.ParseFailed("scenario", err)
	}
	if sc.BankSize < 0 {
		return nil, errors.InvalidData(errors.PhaseParse, []string{"bank_size"}, "must not be negative")
	}
	for i, step := range sc.Steps {
		if err := step.Validate("steps", strconv.Itoa(i)); err != nil {
			return nil, err
		}
	}
	return &sc, nil
}

// ParseStep decodes a single step, for example "release: cube" or
// "mesh: {name: cube, vertices: 36}".
func ParseStep(text string) (Step, error) {
	dec := yaml.NewDecoder(bytes.NewReader([]byte(text)))
	dec.KnownFields(true)

	var step Step
	if err := dec.Decode(&step); err != nil {
		if stderrors.Is(err, io.EOF) {
			return Step{}, errors.InvalidInput(errors.PhaseParse, "empty step")
		}
		return Step{}, errors.ParseFailed("step", err)
	}
	if err := step.Validate(); err != nil {
		return Step{}, err
	}
	return step, nil
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is supplied by the operator
	if err != nil {
		return nil, errors.Load("read scenario "+path, err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if sc.Name == "" {
		sc.Name = path
	}
	return sc, nil
}
