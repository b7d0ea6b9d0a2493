package scene

import (
	"fmt"
	"math"
	"strings"

	"github.com/jglrxavpok/carrot-handles/errors"
	"github.com/jglrxavpok/carrot-handles/handle"
)

// Vec3 is a 3-component vector. It decodes from a YAML sequence.
type Vec3 [3]float32

// LightType selects how a light is evaluated by the shader.
type LightType uint32

const (
	LightPoint LightType = iota
	LightDirectional
	LightSpot
)

func (t LightType) String() string {
	switch t {
	case LightPoint:
		return "Point"
	case LightDirectional:
		return "Directional"
	case LightSpot:
		return "Spot"
	default:
		return fmt.Sprintf("LightType(%d)", uint32(t))
	}
}

// ParseLightType parses a light type name, ignoring case.
func ParseLightType(s string) (LightType, error) {
	switch strings.ToLower(s) {
	case "point":
		return LightPoint, nil
	case "directional":
		return LightDirectional, nil
	case "spot":
		return LightSpot, nil
	}
	return 0, errors.NotFound(errors.PhaseParse, "light type", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *LightType) UnmarshalText(text []byte) error {
	v, err := ParseLightType(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (t LightType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// LightData is the per-light record uploaded to the light buffer.
type LightData struct {
	Position  Vec3
	Intensity float32
	Direction Vec3
	Type      LightType
	Color     Vec3
	Enabled   bool

	// point light
	ConstantAttenuation  float32
	LinearAttenuation    float32
	QuadraticAttenuation float32

	// spot light
	CutoffCosAngle      float32
	OuterCutoffCosAngle float32
}

// DefaultLightData returns a disabled white point light at the origin.
func DefaultLightData() LightData {
	return LightData{
		Intensity:            1,
		Direction:            Vec3{1, 1, 1},
		Type:                 LightPoint,
		Color:                Vec3{1, 1, 1},
		ConstantAttenuation:  1,
		LinearAttenuation:    0.09,
		QuadraticAttenuation: 0.032,
		CutoffCosAngle:       float32(math.Cos(math.Pi / 7)),
		OuterCutoffCosAngle:  float32(math.Cos(math.Pi / 8)),
	}
}

// Light is a pooled light source. Its slot index addresses its entry in
// the lighting buffer.
type Light struct {
	handle.Self[Light]
	LightData
	Name string
}
