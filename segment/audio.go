package segment

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// ExtractAudio strips the audio track from a video file into a mono WAV at
// the given sample rate using ffmpeg. The output is written to a temp path
// and renamed into place so a killed run never leaves a half-written file
// that would satisfy the presence check.
func ExtractAudio(ctx context.Context, videoPath, audioPath string, sampleRate int) error {
	tmp := audioPath + ".part"
	args := []string{
		"-y",
		"-i", videoPath,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-f", "wav",
		tmp,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ffmpeg %s: %w: %s", videoPath, err, excerpt(out))
	}
	if err := os.Rename(tmp, audioPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize audio %s: %w", audioPath, err)
	}
	return nil
}

// excerpt keeps command output in error messages readable.
func excerpt(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > 512 {
		s = s[len(s)-512:]
	}
	return s
}
