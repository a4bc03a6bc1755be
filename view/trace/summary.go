package trace

// TraceSummary aggregates statistics from a RenderTrace.
type TraceSummary struct {
	FullPasses          int
	LODPasses           int
	DistributedFull     int
	DistributedLOD      int
	ForcedDecisions     int
	ElementsSent        int
	BytesSent           int64
	SkippedRedistribute int
	BlocksStreamed      int
	// BlocksPerRepresentation counts streamed blocks by representation name.
	BlocksPerRepresentation map[string]int
}

// Summarize computes aggregate statistics from a RenderTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(rt *RenderTrace) *TraceSummary {
	summary := &TraceSummary{
		BlocksPerRepresentation: make(map[string]int),
	}
	if rt == nil {
		return summary
	}

	for _, d := range rt.Decisions {
		if d.LOD {
			summary.LODPasses++
			if d.Distributed {
				summary.DistributedLOD++
			}
		} else {
			summary.FullPasses++
			if d.Distributed {
				summary.DistributedFull++
			}
		}
		if d.Forced != "" {
			summary.ForcedDecisions++
		}
	}

	for _, d := range rt.Deliveries {
		summary.ElementsSent += d.ElementsSent
		summary.BytesSent += d.BytesSent
		summary.SkippedRedistribute += len(d.Skipped)
	}

	for _, s := range rt.Streams {
		summary.BlocksStreamed += len(s.Blocks)
		summary.BlocksPerRepresentation[s.Representation] += len(s.Blocks)
	}

	return summary
}
