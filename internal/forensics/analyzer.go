package forensics

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/sufield/popc/internal/bg"
	"github.com/sufield/popc/internal/domain"
)

// Analyzer runs the detectors on a bounded worker pool.
type Analyzer struct {
	th   Thresholds
	pool *bg.Pool
}

// NewAnalyzer returns an Analyzer. A nil pool gets a GOMAXPROCS-sized one.
func NewAnalyzer(th Thresholds, pool *bg.Pool) *Analyzer {
	if pool == nil {
		pool = bg.NewPool(0)
	}
	return &Analyzer{th: th, pool: pool}
}

// Analyze extracts metadata and pixel signals concurrently and fuses them.
// The only error is failing to obtain a worker before ctx is done.
func (a *Analyzer) Analyze(ctx context.Context, asset []byte) (domain.HeuristicReport, error) {
	var rep domain.HeuristicReport

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.pool.Run(gctx, func() {
			rep.Signals.Exif = ExtractExif(asset)
			rep.Signals.JPEG = AnalyzeJPEG(asset)
		})
	})
	g.Go(func() error {
		return a.pool.Run(gctx, func() {
			rep.CV = AnalyzePixels(asset, a.th)
		})
	})
	if err := g.Wait(); err != nil {
		return domain.HeuristicReport{}, fmt.Errorf("forensic analysis: %w", err)
	}

	rep.Score = ComputeHeuristicScore(rep.Signals)
	rep.Notes = notes(rep)
	return rep, nil
}

// notes lists the observations behind a score as reason strings.
func notes(rep domain.HeuristicReport) []string {
	out := []string{domain.CodeNoManifest, domain.CodeHeuristicModePrefix + strconv.Itoa(rep.Score)}

	ex := rep.Signals.Exif
	if ex.Present {
		out = append(out, "exif_present")
	} else {
		out = append(out, "exif_missing")
	}
	if cam := ex.Camera(); cam != "" {
		out = append(out, "camera:"+cam)
	}
	if ex.Software != "" {
		out = append(out, "software:"+ex.Software)
		if IsKnownEditor(ex.Software) {
			out = append(out, "editor_software_detected")
		}
	}

	jp := rep.Signals.JPEG
	if jp.Progressive {
		out = append(out, "jpeg_progressive")
	}
	if jp.RecompressionDetected {
		out = append(out, "recompression_detected")
	}
	if jp.QuantTableAnomaly {
		out = append(out, "quant_table_anomaly")
	}

	cv := rep.CV
	if cv.Glare.Detected {
		out = append(out, "glare_detected")
	}
	if cv.Moire.Detected {
		out = append(out, "moire_detected")
	}
	if cv.PixelGrid.Detected {
		out = append(out, "pixel_grid_detected")
	}
	if cv.DepthAnomaly.Detected {
		out = append(out, "depth_anomaly_detected")
	}
	return out
}
