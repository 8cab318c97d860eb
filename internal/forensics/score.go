package forensics

import (
	"math"
	"strings"

	"github.com/sufield/popc/internal/domain"
)

// Score fusion weights.
const (
	baseScore           = 50
	exifPresentBonus    = 10
	cameraNoEditorBonus = 10
	editorPenalty       = 5
	recompressPenalty   = 15
	quantAnomalyPenalty = 10
	prnuWeight          = 0.3
	mlWeight            = 0.2
	mlNeutral           = 50
)

var knownEditors = []string{"photoshop", "gimp", "lightroom", "pixelmator", "affinity"}

// IsKnownEditor reports whether a software tag names an image editor.
func IsKnownEditor(software string) bool {
	s := strings.ToLower(software)
	for _, e := range knownEditors {
		if strings.Contains(s, e) {
			return true
		}
	}
	return false
}

// ComputeHeuristicScore fuses signals into an integer in [0, 100].
func ComputeHeuristicScore(sig domain.HeuristicSignals) int {
	score := float64(baseScore)

	if sig.Exif.Present {
		score += exifPresentBonus
	}
	if sig.Exif.Camera() != "" && sig.Exif.Software == "" {
		score += cameraNoEditorBonus
	}
	if sig.Exif.Software != "" && IsKnownEditor(sig.Exif.Software) {
		score -= editorPenalty
	}
	if sig.JPEG.RecompressionDetected {
		score -= recompressPenalty
	}
	if sig.JPEG.QuantTableAnomaly {
		score -= quantAnomalyPenalty
	}
	if sig.PRNUScore != nil {
		score += *sig.PRNUScore * prnuWeight
	}
	if sig.MLScore != nil {
		score += (*sig.MLScore - mlNeutral) * mlWeight
	}

	return int(math.Round(math.Max(0, math.Min(100, score))))
}
