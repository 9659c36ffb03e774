// Package segment turns voice-activity detection output into dataset-ready
// speech segments: audio extraction, VAD invocation, gap-bridging merge, and
// length filtering.
package segment

// Segment is a detected speech interval in video-relative milliseconds.
type Segment struct {
	StartMS int64 `json:"start_ms"`
	EndMS   int64 `json:"end_ms"`
}

// Merge bridges gaps and length-filters a list of speech intervals.
//
// Precondition: segs is sorted by StartMS. The sweep does not sort.
//
// A single left-to-right pass keeps a running accumulator: an interval whose
// start is within gapMS of the accumulator's end extends it (speech split by
// a short pause is one utterance); otherwise the accumulator is closed and
// emitted iff its length is within [minMS, maxMS], both bounds inclusive.
// Out-of-bounds segments are dropped whole, never truncated, so emitted
// boundaries always align with detected speech.
func Merge(segs []Segment, gapMS, minMS, maxMS int64) []Segment {
	out := []Segment{}
	if len(segs) == 0 {
		return out
	}

	curr := segs[0]
	emit := func() {
		if l := curr.EndMS - curr.StartMS; l >= minMS && l <= maxMS {
			out = append(out, curr)
		}
	}
	for _, s := range segs[1:] {
		if s.StartMS-curr.EndMS <= gapMS {
			curr.EndMS = s.EndMS
			continue
		}
		emit()
		curr = s
	}
	emit()
	return out
}
