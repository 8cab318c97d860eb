package forensics

import (
	"bytes"
	"strings"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/sufield/popc/internal/domain"
)

// ExtractExif reads camera make/model, software, creation date and GPS.
// Assets without an EXIF segment return Present=false.
func ExtractExif(data []byte) (out domain.ExifData) {
	defer func() {
		if recover() != nil {
			out = domain.ExifData{}
		}
	}()

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil || x == nil {
		return domain.ExifData{}
	}

	out.Present = true
	out.Make = stringTag(x, exif.Make)
	out.Model = stringTag(x, exif.Model)
	out.Software = stringTag(x, exif.Software)
	if t, err := x.DateTime(); err == nil {
		t = t.UTC()
		out.CreatedAt = &t
	}
	if lat, long, err := x.LatLong(); err == nil {
		out.GPS = &domain.GPS{Latitude: lat, Longitude: long}
	}
	return out
}

func stringTag(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}
