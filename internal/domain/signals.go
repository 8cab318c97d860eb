package domain

import "time"

// ExifData is what the analyzer extracts from an EXIF segment.
type ExifData struct {
	Present   bool       `json:"present"`
	Make      string     `json:"make,omitempty"`
	Model     string     `json:"model,omitempty"`
	Software  string     `json:"software,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	GPS       *GPS       `json:"gps,omitempty"`
}

// Camera returns "make model" or "" when neither is known.
func (e ExifData) Camera() string {
	switch {
	case e.Make != "" && e.Model != "":
		return e.Make + " " + e.Model
	case e.Make != "":
		return e.Make
	default:
		return e.Model
	}
}

// GPS is a decimal-degree coordinate.
type GPS struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// JPEGStructure summarizes the marker segments before the first scan.
type JPEGStructure struct {
	IsJPEG                bool `json:"isJpeg"`
	Progressive           bool `json:"progressive"`
	AppMarkerCount        int  `json:"appMarkerCount"`
	QuantTableCount       int  `json:"quantTableCount"`
	RecompressionDetected bool `json:"recompressionDetected"`
	QuantTableAnomaly     bool `json:"quantTableAnomaly"`
}

// HeuristicSignals is the input of score fusion.
type HeuristicSignals struct {
	Exif      ExifData      `json:"exif"`
	JPEG      JPEGStructure `json:"jpeg"`
	PRNUScore *float64      `json:"prnuScore,omitempty"`
	MLScore   *float64      `json:"mlScore,omitempty"`
}

// CVSignal is one pixel-domain detector output.
type CVSignal struct {
	Detected bool    `json:"detected"`
	Score    float64 `json:"score"`
}

// CVAnalysisResult is the pixel-domain analysis of a decoded image.
type CVAnalysisResult struct {
	Glare        CVSignal `json:"glare"`
	Moire        CVSignal `json:"moire"`
	PixelGrid    CVSignal `json:"pixel_grid"`
	DepthAnomaly CVSignal `json:"depth_anomaly"`
}

// HeuristicReport is the forensic analysis of an unsigned asset.
type HeuristicReport struct {
	Signals HeuristicSignals `json:"signals"`
	CV      CVAnalysisResult `json:"cv"`
	Score   int              `json:"score"`
	Notes   []string         `json:"notes"`
}
