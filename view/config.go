package view

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/distview/distview/view/streaming"
)

// StreamingConfig groups streaming-queue settings.
type StreamingConfig struct {
	Scorer        string `yaml:"scorer"`          // "screen-space" (default) or "coarse-first"
	BlocksPerPass int    `yaml:"blocks_per_pass"` // blocks each rank pops per StreamingUpdate (default 1)
}

// Config groups the render-view settings.
type Config struct {
	RemoteRenderingThresholdMB float64         `yaml:"remote_rendering_threshold_mb"` // aggregate MB above which rendering is distributed
	LODRenderingThresholdMB    float64         `yaml:"lod_rendering_threshold_mb"`    // aggregate MB above which interactive renders use LOD
	LODResolution              float64         `yaml:"lod_resolution"`                // fraction of elements kept in LOD geometry, in [0,1]
	UseOutlineForLOD           bool            `yaml:"use_outline_for_lod"`           // LOD geometry is the bounding outline only
	OrderedCompositing         bool            `yaml:"ordered_compositing"`           // build a spatial partition across render ranks
	RemoteRenderingAvailable   bool            `yaml:"remote_rendering_available"`    // false forces local rendering
	Streaming                  StreamingConfig `yaml:"streaming"`
}

// DefaultConfig returns the default view settings.
func DefaultConfig() Config {
	return Config{
		RemoteRenderingThresholdMB: 20,
		LODRenderingThresholdMB:    5,
		LODResolution:              0.5,
		UseOutlineForLOD:           false,
		OrderedCompositing:         true,
		RemoteRenderingAvailable:   true,
		Streaming: StreamingConfig{
			Scorer:        "screen-space",
			BlocksPerPass: 1,
		},
	}
}

// LoadConfig reads a YAML view configuration. Fields absent from the file
// keep their DefaultConfig values. Unrecognized keys are rejected.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading view config: %w", err)
	}
	cfg := DefaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing view config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and names.
func (c Config) Validate() error {
	if err := validateThreshold("remote_rendering_threshold_mb", c.RemoteRenderingThresholdMB); err != nil {
		return err
	}
	if err := validateThreshold("lod_rendering_threshold_mb", c.LODRenderingThresholdMB); err != nil {
		return err
	}
	if math.IsNaN(c.LODResolution) || c.LODResolution < 0 || c.LODResolution > 1 {
		return fmt.Errorf("lod_resolution must be in [0,1], got %f", c.LODResolution)
	}
	if !streaming.IsValidScorer(c.Streaming.Scorer) {
		return fmt.Errorf("unknown streaming.scorer %q; valid: %v", c.Streaming.Scorer, streaming.ValidScorerNames())
	}
	if c.Streaming.BlocksPerPass < 1 {
		return fmt.Errorf("streaming.blocks_per_pass must be >= 1, got %d", c.Streaming.BlocksPerPass)
	}
	return nil
}

func validateThreshold(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%s must be a finite non-negative number, got %f", name, v)
	}
	return nil
}
