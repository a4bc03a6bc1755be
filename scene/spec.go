// Package scene describes a render session in YAML (process layout, view
// settings, camera, representations and the frames to drive) and builds
// each rank's representations from it deterministically.
package scene

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"github.com/distview/distview/view"
	"github.com/distview/distview/view/amr"
	"github.com/distview/distview/view/comm"
	"github.com/distview/distview/view/geom"
)

// Spec is the top-level scene configuration.
// Loaded from YAML via Load(path).
type Spec struct {
	Version         string               `yaml:"version"`
	Seed            int64                `yaml:"seed"`
	Layout          TopologySpec         `yaml:"topology"`
	View            view.Config          `yaml:"view"`
	Camera          CameraSpec           `yaml:"camera"`
	ClampBounds     []float64            `yaml:"clamp_bounds,omitempty"` // xmin,xmax,ymin,ymax,zmin,zmax
	Representations []RepresentationSpec `yaml:"representations"`
	Frames          []string             `yaml:"frames"`
}

// TopologySpec selects the session layout.
type TopologySpec struct {
	Mode          string `yaml:"mode"`
	Processes     int    `yaml:"processes,omitempty"`      // client-server: client + servers
	DataServers   int    `yaml:"data_servers,omitempty"`   // client-data-render only
	RenderServers int    `yaml:"render_servers,omitempty"` // client-data-render only
}

// CameraSpec is either a perspective camera or explicit view planes.
type CameraSpec struct {
	Eye    []float64 `yaml:"eye,omitempty"`
	Target []float64 `yaml:"target,omitempty"`
	Up     []float64 `yaml:"up,omitempty"`
	FovY   float64   `yaml:"fov_y,omitempty"` // degrees
	Aspect float64   `yaml:"aspect,omitempty"`
	Near   float64   `yaml:"near,omitempty"`
	Far    float64   `yaml:"far,omitempty"`
	Planes []float64 `yaml:"planes,omitempty"` // 24 values, (a,b,c,d) x 6
}

// RepresentationSpec defines one displayed dataset.
type RepresentationSpec struct {
	Name            string    `yaml:"name"`
	Kind            string    `yaml:"kind"`              // geometry, amr, legend
	Bounds          []float64 `yaml:"bounds"`            // xmin,xmax,ymin,ymax,zmin,zmax
	ElementsPerRank int       `yaml:"elements_per_rank"` // geometry only

	Policy               []string `yaml:"policy,omitempty"`
	Mode                 string   `yaml:"redistribution_mode,omitempty"`
	DeliverToClient      bool     `yaml:"deliver_to_client,omitempty"`
	GatherBeforeDelivery *bool    `yaml:"gather_before_delivery,omitempty"` // default true
	DeliverToAll         bool     `yaml:"deliver_to_all,omitempty"`
	RequiresDistributed  bool     `yaml:"requires_distributed,omitempty"`
	RequiresLocal        bool     `yaml:"requires_local,omitempty"`

	Levels     int `yaml:"levels,omitempty"`     // amr only
	Refinement int `yaml:"refinement,omitempty"` // amr only, per-axis ratio
}

// Frame names.
const (
	FrameStill       = "still"
	FrameInteractive = "interactive"
	FrameStream      = "stream"
)

// Representation kinds.
const (
	KindGeometry = "geometry"
	KindAMR      = "amr"
	KindLegend   = "legend"
)

// MaxElementsPerRank bounds a geometry representation's generated elements.
const MaxElementsPerRank = 1 << 20

// Valid value registries.
var (
	validKinds = map[string]bool{
		KindGeometry: true, KindAMR: true, KindLegend: true,
	}
	validFrames = map[string]bool{
		FrameStill: true, FrameInteractive: true, FrameStream: true,
	}
	validVersions = map[string]bool{
		"": true, "1": true,
	}
)

// Load reads and parses a YAML scene file. View settings absent from the
// file keep their view.DefaultConfig values. Uses strict parsing:
// unrecognized keys (typos) are rejected.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scene: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML scene.
func Parse(data []byte) (*Spec, error) {
	spec := Spec{View: view.DefaultConfig()}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing scene: %w", err)
	}
	if spec.Version == "" {
		spec.Version = "1"
	}
	return &spec, nil
}

// Validate checks every field of the scene and returns the first problem found.
func (s *Spec) Validate() error {
	if !validVersions[s.Version] {
		return fmt.Errorf("unsupported scene version %q; valid: 1", s.Version)
	}
	if !comm.IsValidMode(s.Layout.Mode) {
		return fmt.Errorf("unknown topology mode %q; valid: builtin, client-server, client-data-render", s.Layout.Mode)
	}
	if err := s.Topology().Validate(); err != nil {
		return fmt.Errorf("topology: %w", err)
	}
	if err := s.View.Validate(); err != nil {
		return fmt.Errorf("view: %w", err)
	}
	if _, err := s.Camera.Frustum(); err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	if len(s.ClampBounds) > 0 {
		if _, err := boxFrom("clamp_bounds", s.ClampBounds); err != nil {
			return err
		}
	}
	if len(s.Representations) == 0 {
		return fmt.Errorf("at least one representation required")
	}
	names := make(map[string]bool, len(s.Representations))
	for i := range s.Representations {
		r := &s.Representations[i]
		if err := validateRepresentation(r, i); err != nil {
			return err
		}
		if names[r.Name] {
			return fmt.Errorf("representation[%d]: duplicate name %q", i, r.Name)
		}
		names[r.Name] = true
	}
	if len(s.Frames) == 0 {
		return fmt.Errorf("at least one frame required")
	}
	for i, f := range s.Frames {
		if !validFrames[f] {
			return fmt.Errorf("frame[%d]: unknown frame %q; valid: still, interactive, stream", i, f)
		}
	}
	return nil
}

func validateRepresentation(r *RepresentationSpec, idx int) error {
	prefix := fmt.Sprintf("representation[%d]", idx)
	if r.Name == "" {
		return fmt.Errorf("%s: name required", prefix)
	}
	if !validKinds[r.Kind] {
		return fmt.Errorf("%s: unknown kind %q; valid: geometry, amr, legend", prefix, r.Kind)
	}
	if _, err := boxFrom(prefix+".bounds", r.Bounds); err != nil {
		return err
	}
	if _, err := view.ParsePolicy(r.Policy); err != nil {
		return fmt.Errorf("%s: %w", prefix, err)
	}
	if _, err := view.ParseRedistributionMode(r.Mode); err != nil {
		return fmt.Errorf("%s: %w", prefix, err)
	}
	switch r.Kind {
	case KindGeometry:
		if r.ElementsPerRank < 0 || r.ElementsPerRank > MaxElementsPerRank {
			return fmt.Errorf("%s: elements_per_rank must be in [0, %d], got %d", prefix, MaxElementsPerRank, r.ElementsPerRank)
		}
	case KindAMR:
		if r.Levels < 1 {
			return fmt.Errorf("%s: levels must be >= 1, got %d", prefix, r.Levels)
		}
		if r.Refinement < 2 {
			return fmt.Errorf("%s: refinement must be >= 2, got %d", prefix, r.Refinement)
		}
		if _, ok := amr.UniformBlockCount(r.Levels, r.Refinement); !ok {
			return fmt.Errorf("%s: %d levels at refinement %d exceed %d blocks", prefix, r.Levels, r.Refinement, amr.MaxUniformBlocks)
		}
	}
	return nil
}

// Topology returns the session layout.
func (s *Spec) Topology() comm.Topology {
	switch comm.SessionMode(s.Layout.Mode) {
	case comm.ModeBuiltin:
		return comm.Builtin()
	case comm.ModeClientDataRender:
		return comm.ClientDataRender(s.Layout.DataServers, s.Layout.RenderServers)
	}
	return comm.Topology{Mode: comm.SessionMode(s.Layout.Mode), Processes: s.Layout.Processes}
}

// Clamp returns the clamp bounds, or uninitialized bounds when none are set.
func (s *Spec) Clamp() [6]float64 {
	if len(s.ClampBounds) != 6 {
		return geom.UninitializedBounds()
	}
	var b [6]float64
	copy(b[:], s.ClampBounds)
	return b
}

// Frustum returns the camera's view frustum.
func (c CameraSpec) Frustum() (geom.Frustum, error) {
	if len(c.Planes) > 0 {
		return geom.ParsePlanes(c.Planes)
	}
	eye, err := vecFrom("eye", c.Eye)
	if err != nil {
		return geom.Frustum{}, err
	}
	target, err := vecFrom("target", c.Target)
	if err != nil {
		return geom.Frustum{}, err
	}
	up, err := vecFrom("up", c.Up)
	if err != nil {
		return geom.Frustum{}, err
	}
	if r3.Norm(r3.Sub(target, eye)) == 0 {
		return geom.Frustum{}, fmt.Errorf("eye and target coincide")
	}
	if r3.Norm(r3.Cross(r3.Sub(target, eye), up)) == 0 {
		return geom.Frustum{}, fmt.Errorf("up is parallel to the view direction")
	}
	if !(c.FovY > 0 && c.FovY < 180) {
		return geom.Frustum{}, fmt.Errorf("fov_y must be in (0,180), got %f", c.FovY)
	}
	aspect := c.Aspect
	if aspect == 0 {
		aspect = 1
	}
	if aspect < 0 || math.IsInf(aspect, 0) || math.IsNaN(aspect) {
		return geom.Frustum{}, fmt.Errorf("aspect must be positive, got %f", c.Aspect)
	}
	if !(c.Near > 0 && c.Far > c.Near) {
		return geom.Frustum{}, fmt.Errorf("need 0 < near < far, got near=%f far=%f", c.Near, c.Far)
	}
	return geom.PerspectiveFrustum(eye, target, up, c.FovY, aspect, c.Near, c.Far), nil
}

func vecFrom(name string, v []float64) (r3.Vec, error) {
	if len(v) != 3 {
		return r3.Vec{}, fmt.Errorf("%s: want 3 values, got %d", name, len(v))
	}
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return r3.Vec{}, fmt.Errorf("%s must be finite", name)
		}
	}
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}, nil
}

func boxFrom(name string, v []float64) (geom.Box, error) {
	if len(v) != 6 {
		return geom.Box{}, fmt.Errorf("%s: want 6 values, got %d", name, len(v))
	}
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return geom.Box{}, fmt.Errorf("%s must be finite", name)
		}
	}
	b := geom.NewBox(v[0], v[1], v[2], v[3], v[4], v[5])
	if !b.IsValid() {
		return geom.Box{}, fmt.Errorf("%s: min exceeds max in %v", name, v)
	}
	return b, nil
}
