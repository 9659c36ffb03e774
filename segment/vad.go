package segment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/jiyun-dev/chzzk-vodset/telemetry"
)

// VADResult is the JSON document the external voice-activity detector emits
// on stdout: its own merge threshold plus [start_ms, end_ms] pairs sorted by
// start.
type VADResult struct {
	MergeThresholdMS int64      `json:"merge_threshold_ms"`
	SpeechTimestamps [][2]int64 `json:"speech_timestamps_ms"`
}

// Segments converts the raw timestamp pairs into Segment values.
func (r VADResult) Segments() []Segment {
	out := make([]Segment, 0, len(r.SpeechTimestamps))
	for _, ts := range r.SpeechTimestamps {
		out = append(out, Segment{StartMS: ts[0], EndMS: ts[1]})
	}
	return out
}

// Detector runs an external VAD command against an audio file. The command
// line is split on whitespace with the audio path appended as the final
// argument, e.g. VAD_CMD="python3 vad.py".
type Detector struct {
	Command []string
}

// Detect runs the detector and parses its stdout.
func (d *Detector) Detect(ctx context.Context, audioPath string) (VADResult, error) {
	var res VADResult
	if len(d.Command) == 0 {
		return res, fmt.Errorf("vad command not configured")
	}
	args := append(append([]string{}, d.Command[1:]...), audioPath)
	cmd := exec.CommandContext(ctx, d.Command[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	telemetry.VADDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return res, fmt.Errorf("vad %s: %w: %s", audioPath, err, excerpt(stderr.Bytes()))
	}
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		return res, fmt.Errorf("parse vad output for %s: %w", audioPath, err)
	}
	return res, nil
}
