package forensics

import (
	"bytes"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"math"
	"math/cmplx"
	"math/rand/v2"

	_ "golang.org/x/image/webp" // register decoder
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sufield/popc/internal/domain"
)

// Thresholds tune the pixel-domain detectors.
type Thresholds struct {
	// MinBin is the first FFT bin considered; lower bins carry DC and
	// near-DC energy.
	MinBin int
	// Moire is the peak-to-mean ratio above which moiré is flagged.
	Moire float64
	// PixelGrid is the ratio above which a display pixel grid is flagged.
	PixelGrid float64
	// GlareLuma is the luma above which a pixel counts as blown out.
	GlareLuma float64
	// GlareFraction is the fraction of blown-out pixels that flags glare.
	GlareFraction float64
	// DepthMeanMin and DepthVarOfVarMax bound the flat-texture detector.
	DepthMeanMin     float64
	DepthVarOfVarMax float64
}

// DefaultThresholds returns the calibrated defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinBin:           10,
		Moire:            15,
		PixelGrid:        30,
		GlareLuma:        250,
		GlareFraction:    0.01,
		DepthMeanMin:     10,
		DepthVarOfVarMax: 100,
	}
}

const (
	fftSize          = 512
	glareSampleGoal  = 100000
	depthMinSide     = 200
	depthGrid        = 4
	depthSamples     = 100
	spectrumFloor    = 1e-6
	depthSeedPrimary = 0x706f7063
)

// lumaImage is an image reduced to Rec. 601 luma.
type lumaImage struct {
	w, h int
	pix  []float64
}

func (l *lumaImage) at(x, y int) float64 {
	return l.pix[y*l.w+x]
}

func toLuma(img image.Image) *lumaImage {
	b := img.Bounds()
	l := &lumaImage{w: b.Dx(), h: b.Dy(), pix: make([]float64, b.Dx()*b.Dy())}
	for y := 0; y < l.h; y++ {
		for x := 0; x < l.w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			l.pix[y*l.w+x] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(bl>>8)
		}
	}
	return l
}

// AnalyzePixels decodes data and runs every detector. Decode failures
// return all four signals undetected with zero score.
func AnalyzePixels(data []byte, th Thresholds) (out domain.CVAnalysisResult) {
	defer func() {
		if recover() != nil {
			out = domain.CVAnalysisResult{}
		}
	}()

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return domain.CVAnalysisResult{}
	}
	return AnalyzeImage(img, th)
}

// AnalyzeImage runs the detectors on a decoded image.
func AnalyzeImage(img image.Image, th Thresholds) domain.CVAnalysisResult {
	l := toLuma(img)
	if l.w == 0 || l.h == 0 {
		return domain.CVAnalysisResult{}
	}
	var out domain.CVAnalysisResult
	out.Glare = detectGlare(l, th)
	out.Moire, out.PixelGrid = detectPeriodic(l, th)
	out.DepthAnomaly = detectFlatDepth(l, th)
	return out
}

func detectGlare(l *lumaImage, th Thresholds) domain.CVSignal {
	total := l.w * l.h
	stride := max(1, int(math.Sqrt(float64(total)/glareSampleGoal)))

	var sampled, bright int
	for y := 0; y < l.h; y += stride {
		for x := 0; x < l.w; x += stride {
			sampled++
			if l.at(x, y) > th.GlareLuma {
				bright++
			}
		}
	}
	fraction := float64(bright) / float64(sampled)
	return domain.CVSignal{Detected: fraction > th.GlareFraction, Score: round3(fraction)}
}

// detectPeriodic looks for a dominant spatial frequency along the centre
// row and column. Periodic interference from photographing a screen shows up
// as a sharp spectral peak.
func detectPeriodic(l *lumaImage, th Thresholds) (moire, grid domain.CVSignal) {
	if l.w < fftSize || l.h < fftSize {
		return moire, grid
	}

	row := make([]float64, fftSize)
	col := make([]float64, fftSize)
	x0, y0 := (l.w-fftSize)/2, (l.h-fftSize)/2
	for i := range fftSize {
		row[i] = l.at(x0+i, l.h/2)
		col[i] = l.at(l.w/2, y0+i)
	}

	fft := fourier.NewFFT(fftSize)
	ratio := math.Max(peakToMean(fft, row, th.MinBin), peakToMean(fft, col, th.MinBin))

	if ratio > th.Moire {
		moire = domain.CVSignal{Detected: true, Score: round3(clamp01(ratio / (2 * th.Moire)))}
	}
	if ratio > th.PixelGrid {
		grid = domain.CVSignal{Detected: true, Score: round3(clamp01(ratio / (2 * th.PixelGrid)))}
	}
	return moire, grid
}

// peakToMean is max/mean of the magnitude spectrum over [minBin, N/2).
func peakToMean(fft *fourier.FFT, seq []float64, minBin int) float64 {
	coeff := fft.Coefficients(nil, seq)
	half := len(seq) / 2
	if minBin < 1 {
		minBin = 1
	}
	if minBin >= half {
		return 0
	}
	mags := make([]float64, 0, half-minBin)
	for k := minBin; k < half; k++ {
		mags = append(mags, cmplx.Abs(coeff[k]))
	}
	mean := stat.Mean(mags, nil)
	if mean <= spectrumFloor {
		return 0
	}
	return floats.Max(mags) / mean
}

// detectFlatDepth flags images that are textured overall but spatially
// uniform, typical of a flat document or screen rather than a 3D scene.
func detectFlatDepth(l *lumaImage, th Thresholds) domain.CVSignal {
	if l.w <= depthMinSide || l.h <= depthMinSide {
		return domain.CVSignal{}
	}

	rng := rand.New(rand.NewPCG(depthSeedPrimary, uint64(l.w)<<32|uint64(l.h)))
	cw, ch := l.w/depthGrid, l.h/depthGrid
	cellVars := make([]float64, 0, depthGrid*depthGrid)
	sample := make([]float64, depthSamples)

	for gy := range depthGrid {
		for gx := range depthGrid {
			for i := range sample {
				x := gx*cw + rng.IntN(cw)
				y := gy*ch + rng.IntN(ch)
				sample[i] = l.at(x, y)
			}
			_, v := stat.PopMeanVariance(sample, nil)
			cellVars = append(cellVars, v)
		}
	}

	vMean, vOfV := stat.PopMeanVariance(cellVars, nil)
	if vMean > th.DepthMeanMin && vOfV < th.DepthVarOfVarMax {
		return domain.CVSignal{Detected: true, Score: round3(clamp01(1 - vOfV/th.DepthVarOfVarMax))}
	}
	return domain.CVSignal{}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
