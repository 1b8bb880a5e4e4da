// Package codec decodes raw image bytes into rasters and encodes buffers back
// into image formats.
package codec

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrDecodeFailure         = errors.New("decode failure")
	ErrUnsupportedMimeType   = errors.New("unsupported mime type")
	ErrUnsupportedOutputType = errors.New("unsupported output type")
)

const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
	FormatGIF  = "gif"
	FormatBMP  = "bmp"
	FormatTIFF = "tiff"
	FormatWebP = "webp"
	FormatAVIF = "avif"
)

var mimeFormats = map[string]string{
	"image/jpeg":     FormatJPEG,
	"image/jpg":      FormatJPEG,
	"image/pjpeg":    FormatJPEG,
	"image/png":      FormatPNG,
	"image/gif":      FormatGIF,
	"image/bmp":      FormatBMP,
	"image/x-ms-bmp": FormatBMP,
	"image/tiff":     FormatTIFF,
	"image/webp":     FormatWebP,
	"image/avif":     FormatAVIF,
}

// Source is the raw bytes of one uploaded image. It is never mutated.
type Source struct {
	Data     []byte
	MimeType string
	Size     int64
}

// NewSource wraps data, sniffing the MIME type when none is declared.
func NewSource(data []byte, mimeType string) Source {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mimeType == "" {
		mimeType = DetectMimeType(data)
	}
	return Source{Data: data, MimeType: mimeType, Size: int64(len(data))}
}

func DetectMimeType(data []byte) string {
	n := min(len(data), 512)
	ct := http.DetectContentType(data[:n])
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	if ct == "application/octet-stream" && isAVIF(data) {
		return "image/avif"
	}
	return ct
}

func isAVIF(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	brand := string(data[8:12])
	return brand == "avif" || brand == "avis"
}

// FormatForMime returns the short format name for a MIME type.
func FormatForMime(mimeType string) (string, bool) {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	f, ok := mimeFormats[mimeType]
	return f, ok
}

func MimeForFormat(format string) string {
	switch format {
	case FormatJPEG:
		return "image/jpeg"
	case FormatGIF:
		return "image/gif"
	case FormatBMP:
		return "image/bmp"
	case FormatTIFF:
		return "image/tiff"
	case FormatWebP:
		return "image/webp"
	case FormatAVIF:
		return "image/avif"
	default:
		return "image/png"
	}
}

// ParseOutputType accepts a short format ("jpg", "webp") or a MIME type.
func ParseOutputType(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if strings.Contains(s, "/") {
		return FormatForMime(s)
	}
	switch s {
	case "jpg", FormatJPEG:
		return FormatJPEG, true
	case "tif", FormatTIFF:
		return FormatTIFF, true
	case FormatPNG, FormatGIF, FormatBMP, FormatWebP, FormatAVIF:
		return s, true
	default:
		return "", false
	}
}

// OutputFormat picks the encoding for a result: the explicit request type,
// then the configured default, then the source format, then PNG.
func OutputFormat(requested, configured, sourceMime string) (string, error) {
	if strings.TrimSpace(requested) != "" {
		f, ok := ParseOutputType(requested)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnsupportedOutputType, requested)
		}
		return f, nil
	}
	if f, ok := ParseOutputType(configured); ok {
		return f, nil
	}
	if f, ok := FormatForMime(sourceMime); ok {
		return f, nil
	}
	return FormatPNG, nil
}
