package transcribe

import (
	"strings"

	"github.com/your-org/clipline/internal/models"
)

// Align selects every segment overlapping the clip window
// (seg.End > clipStart && seg.Start < clipEnd), trims each text and joins
// them with single spaces in original order. Returns nil when no segment
// overlaps, so callers can tell "no speech" apart from "speech that trims
// to nothing".
func Align(segments []models.TranscriptSegment, clipStart, clipEnd float64) *string {
	var parts []string
	matched := false

	for _, seg := range segments {
		if seg.End > clipStart && seg.Start < clipEnd {
			matched = true
			if text := strings.TrimSpace(seg.Text); text != "" {
				parts = append(parts, text)
			}
		}
	}

	if !matched {
		return nil
	}
	joined := strings.Join(parts, " ")
	return &joined
}
