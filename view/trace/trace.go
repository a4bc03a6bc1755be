package trace

// Level controls the verbosity of render tracing.
type Level string

const (
	// LevelNone disables tracing.
	LevelNone Level = "none"
	// LevelDecisions captures decisions and deliveries.
	LevelDecisions Level = "decisions"
	// LevelStreaming additionally captures every streaming update.
	LevelStreaming Level = "streaming"
)

var validLevels = map[Level]bool{
	LevelNone:      true,
	LevelDecisions: true,
	LevelStreaming: true,
	"":             true, // empty defaults to none
}

// IsValidLevel returns true if level is a recognized trace level.
func IsValidLevel(level string) bool {
	return validLevels[Level(level)]
}

// RenderTrace collects one rank's records over a session.
type RenderTrace struct {
	Level      Level
	Decisions  []DecisionRecord
	Deliveries []DeliveryRecord
	Streams    []StreamRecord
}

// NewRenderTrace creates a RenderTrace ready for recording.
func NewRenderTrace(level Level) *RenderTrace {
	return &RenderTrace{
		Level:      level,
		Decisions:  make([]DecisionRecord, 0),
		Deliveries: make([]DeliveryRecord, 0),
		Streams:    make([]StreamRecord, 0),
	}
}

func (rt *RenderTrace) enabled() bool {
	return rt != nil && rt.Level != LevelNone && rt.Level != ""
}

// RecordDecision appends a decision record. No-op on a nil or disabled trace.
func (rt *RenderTrace) RecordDecision(r DecisionRecord) {
	if rt.enabled() {
		rt.Decisions = append(rt.Decisions, r)
	}
}

// RecordDelivery appends a delivery record. No-op on a nil or disabled trace.
func (rt *RenderTrace) RecordDelivery(r DeliveryRecord) {
	if rt.enabled() {
		rt.Deliveries = append(rt.Deliveries, r)
	}
}

// RecordStream appends a streaming record when the level is LevelStreaming.
func (rt *RenderTrace) RecordStream(r StreamRecord) {
	if rt.enabled() && rt.Level == LevelStreaming {
		rt.Streams = append(rt.Streams, r)
	}
}
