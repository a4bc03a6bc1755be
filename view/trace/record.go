// Package trace records the per-pass decisions of a render view for offline
// analysis. It stores plain data and has no dependency on the view packages.
package trace

// DecisionRecord captures one RenderDecisionEngine evaluation on one rank.
type DecisionRecord struct {
	Pass      int     `json:"pass"`
	Rank      int     `json:"rank"`
	LOD       bool    `json:"lod"`
	Bytes     float64 `json:"bytes"`     // aggregate over all ranks
	Threshold float64 `json:"threshold"` // MB
	// Distributed is the published distributed-rendering decision for this
	// pass kind; UseLOD is only meaningful for full passes.
	Distributed bool   `json:"distributed"`
	UseLOD      bool   `json:"use_lod"`
	Forced      string `json:"forced,omitempty"` // "distributed", "local" or "" when size decided
	Roles       string `json:"roles"`
}

// DeliveryRecord captures what one DeliveryCoordinator pass moved on one rank.
type DeliveryRecord struct {
	Pass          int      `json:"pass"`
	Rank          int      `json:"rank"`
	LOD           bool     `json:"lod"`
	Distributed   bool     `json:"distributed"`
	Regions       int      `json:"regions"` // 0 when no partition was built
	Redistributed int      `json:"redistributed"`
	Skipped       []string `json:"skipped,omitempty"` // redistributable representations left untouched
	ElementsSent  int      `json:"elements_sent"`
	BytesSent     int64    `json:"bytes_sent"`
	ElementsHeld  int      `json:"elements_held"`
}

// StreamRecord captures one streaming update on one rank.
type StreamRecord struct {
	Pass           int      `json:"pass"`
	Rank           int      `json:"rank"`
	Representation string   `json:"representation"`
	Blocks         []uint32 `json:"blocks"`
	Remaining      int      `json:"remaining"`
}
