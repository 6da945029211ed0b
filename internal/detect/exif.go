package detect

import (
	"os"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// ReadExif decodes the EXIF block of an image file
func ReadExif(path string) (*exif.Exif, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return exif.Decode(file)
}

// exifString returns a trimmed string field, or "" when absent
func exifString(x *exif.Exif, field exif.FieldName) string {
	if x == nil {
		return ""
	}
	tag, err := x.Get(field)
	if err != nil {
		return ""
	}
	if s, err := tag.StringVal(); err == nil {
		return strings.TrimSpace(strings.Trim(s, "\x00"))
	}
	// UNDEFINED fields such as UserComment only render through String()
	return strings.Trim(strings.TrimSpace(tag.String()), `"`)
}

// HasCameraInfo reports whether the EXIF block names a camera
func HasCameraInfo(x *exif.Exif) bool {
	return exifString(x, exif.Make) != "" || exifString(x, exif.Model) != ""
}

// CaptureTime returns the EXIF capture time
func CaptureTime(x *exif.Exif) (time.Time, bool) {
	if x == nil {
		return time.Time{}, false
	}
	t, err := x.DateTime()
	if err != nil || t.IsZero() {
		return time.Time{}, false
	}
	return t, true
}

// IsFrontCamera reports whether the lens model names a front camera
func IsFrontCamera(x *exif.Exif) bool {
	lens := strings.ToLower(exifString(x, exif.LensModel))
	return strings.Contains(lens, "front")
}

// isScreenshotComment matches the UserComment iOS writes on screen captures
func isScreenshotComment(x *exif.Exif) bool {
	comment := strings.ToLower(exifString(x, exif.UserComment))
	return strings.Contains(comment, "screenshot")
}
