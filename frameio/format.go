// Package frameio reads raw camera frames and writes fused frames.
package frameio

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Format is an output image format.
type Format uint8

const (
	// FormatPNG writes lossless PNG.
	FormatPNG Format = iota
	// FormatTIFF writes uncompressed TIFF.
	FormatTIFF
	// FormatBMP writes uncompressed BMP.
	FormatBMP
)

// ErrUnknownFormat is returned for unrecognized format names.
var ErrUnknownFormat = errors.New("frameio: unknown format")

var formatNames = [...]string{
	FormatPNG:  "png",
	FormatTIFF: "tiff",
	FormatBMP:  "bmp",
}

// String returns the format name, which is also its file extension.
func (f Format) String() string {
	if int(f) < len(formatNames) {
		return formatNames[f]
	}
	return fmt.Sprintf("Format(%d)", f)
}

// Ext returns the file extension including the dot.
func (f Format) Ext() string { return "." + f.String() }

// ParseFormat parses a format name. "tif" is accepted for TIFF; matching
// is case-insensitive.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "png":
		return FormatPNG, nil
	case "tiff", "tif":
		return FormatTIFF, nil
	case "bmp":
		return FormatBMP, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Encode writes img to w in format f.
func Encode(w io.Writer, img image.Image, f Format) error {
	switch f {
	case FormatPNG:
		return png.Encode(w, img)
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Uncompressed})
	case FormatBMP:
		return bmp.Encode(w, img)
	default:
		return fmt.Errorf("%w: %v", ErrUnknownFormat, f)
	}
}

// WriteFile encodes img to the named file in format f.
func WriteFile(path string, img image.Image, f Format) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(file)
	if err := Encode(bw, img, f); err != nil {
		_ = file.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
