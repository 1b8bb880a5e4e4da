//go:build !govips || !cgo

package codec

import "github.com/dunamismax/pixelfix/internal/orientation"

func Startup() error {
	return nil
}

func Shutdown() {}

// NewDecoder returns the decoder for this build.
func NewDecoder(maxPixels int) Decoder {
	return ImagingDecoder{MaxPixels: maxPixels}
}

// NewResolver returns the orientation resolver for this build.
func NewResolver() orientation.Resolver {
	return orientation.ExifResolver{}
}
