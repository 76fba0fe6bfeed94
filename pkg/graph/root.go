package graph

import (
	"fmt"
	"strings"
)

// DefaultRootName is the name given to the root block of a new scene.
const DefaultRootName = "root"

// AOVPad is the root input feeding the arbitrary output preview.
const AOVPad = "AOV"

// Stage is one of the generated shader functions.
type Stage int

const (
	StageSurface Stage = iota
	StageDisplacement
	StageLight
	StageVolume
)

// Stages lists every stage in generation order.
var Stages = []Stage{StageSurface, StageDisplacement, StageLight, StageVolume}

func (s Stage) String() string {
	switch s {
	case StageSurface:
		return "surface"
	case StageDisplacement:
		return "displacement"
	case StageLight:
		return "light"
	case StageVolume:
		return "volume"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// ParseStage returns the stage named by text.
func ParseStage(text string) (Stage, error) {
	for _, s := range Stages {
		if strings.EqualFold(strings.TrimSpace(text), s.String()) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown shader stage %q", text)
}

// Sink binds a root pad to the shading-language variable it assigns.
type Sink struct {
	Pad    string
	Target string
}

// Sinks returns the pair of root pads that define stage s.
func (s Stage) Sinks() [2]Sink {
	switch s {
	case StageDisplacement:
		return [2]Sink{{"P", "P"}, {"N", "N"}}
	case StageLight:
		return [2]Sink{{"Cl", "Cl"}, {"Ol", "Ol"}}
	case StageVolume:
		return [2]Sink{{"Cv", "Ci"}, {"Ov", "Oi"}}
	default:
		return [2]Sink{{"Ci", "Ci"}, {"Oi", "Oi"}}
	}
}

// NewRootBlock returns the sink block with its fixed pads.
func NewRootBlock(name string) *Block {
	b := &Block{
		Name:        name,
		Description: "Shader outputs",
		Root:        true,
	}
	pads := []Property{
		{Name: "Ci", Type: TypeColor, Default: "1", Description: "surface color"},
		{Name: "Oi", Type: TypeColor, Default: "1", Description: "surface opacity"},
		{Name: "P", Type: TypePoint, Default: "P", Description: "displaced position"},
		{Name: "N", Type: TypeNormal, Default: "N", Description: "displaced normal"},
		{Name: "Cl", Type: TypeColor, Default: "1", Description: "light color"},
		{Name: "Ol", Type: TypeColor, Default: "1", Description: "light opacity"},
		{Name: "Cv", Type: TypeColor, Default: "0", Description: "volume color"},
		{Name: "Ov", Type: TypeColor, Default: "1", Description: "volume opacity"},
		{Name: AOVPad, Type: TypeColor, Default: "0", Description: "AOV preview", Flow: FlowFromSource},
	}
	for _, p := range pads {
		b.AddInput(p)
	}
	return b
}
