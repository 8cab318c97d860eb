package forensics

import "github.com/sufield/popc/internal/domain"

// JPEG markers read by the structure walk.
const (
	markerSOI  = 0xD8
	markerSOF2 = 0xC2
	markerDQT  = 0xDB
	markerSOS  = 0xDA
	markerEOI  = 0xD9
	markerTEM  = 0x01
	markerRST0 = 0xD0
	markerRST7 = 0xD7
	markerAPP0 = 0xE0
	markerAPPF = 0xEF
)

// Recompression and quant-table thresholds.
const (
	recompressionAppMarkers = 3
	anomalousQuantTables    = 2
)

// AnalyzeJPEG walks marker segments up to the first scan. Non-JPEG input
// yields the zero value.
func AnalyzeJPEG(data []byte) domain.JPEGStructure {
	var s domain.JPEGStructure
	if len(data) < 4 || data[0] != 0xFF || data[1] != markerSOI {
		return s
	}
	s.IsJPEG = true

	for i := 2; i+1 < len(data); {
		if data[i] != 0xFF {
			break
		}
		marker := data[i+1]
		switch {
		case marker == 0xFF:
			i++
			continue
		case marker == markerSOI, marker == markerTEM, marker >= markerRST0 && marker <= markerRST7:
			i += 2
			continue
		case marker == markerSOS, marker == markerEOI:
			return finish(s)
		}

		if i+3 >= len(data) {
			break
		}
		segLen := int(data[i+2])<<8 | int(data[i+3])
		if segLen < 2 {
			break
		}

		switch {
		case marker == markerSOF2:
			s.Progressive = true
		case marker >= markerAPP0 && marker <= markerAPPF:
			s.AppMarkerCount++
		case marker == markerDQT:
			s.QuantTableCount++
		}
		i += 2 + segLen
	}
	return finish(s)
}

func finish(s domain.JPEGStructure) domain.JPEGStructure {
	s.RecompressionDetected = s.AppMarkerCount >= recompressionAppMarkers
	s.QuantTableAnomaly = s.QuantTableCount > anomalousQuantTables
	return s
}
