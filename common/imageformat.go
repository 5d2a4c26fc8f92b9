package common

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/gen2brain/avif"
	"golang.org/x/image/bmp"
	_ "golang.org/x/image/ccitt"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Image format identifiers recognised by ConvertImageTo.
const (
	ImageFormatAvif = "avif"
	ImageFormatBmp  = "bmp"
	ImageFormatJpeg = "jpeg"
	ImageFormatPng  = "png"
	ImageFormatTiff = "tiff"
)

// ConvertImageTo decodes input (any format registered against the image
// package, including the webp/avif page formats the site serves) and
// re-encodes it as outputFormat, returning the extension actually used.
// Used wherever a downstream consumer (a PDF page embed, a thumbnail) needs
// a raster format its own library understands, rather than the bytes as
// the site delivered them.
func ConvertImageTo(input io.Reader, output io.Writer, outputFormat string) (string, error) {
	img, _, err := image.Decode(input)
	if err != nil {
		return "", fmt.Errorf("image decoding failed: %s", err)
	}

	var outputExt string
	switch outputFormat {
	case ImageFormatAvif:
		err = avif.Encode(output, img)
		outputExt = ImageFormatAvif
	case ImageFormatBmp:
		err = bmp.Encode(output, img)
		outputExt = ImageFormatBmp
	case ImageFormatJpeg:
		err = jpeg.Encode(output, img, nil)
		outputExt = ImageFormatJpeg
	case ImageFormatTiff:
		err = tiff.Encode(output, img, nil)
		outputExt = ImageFormatTiff
	default:
		err = png.Encode(output, img)
		outputExt = ImageFormatPng
	}

	if err != nil {
		return "", fmt.Errorf("failed to encode image as %s: %s", outputExt, err)
	}

	return outputExt, nil
}

// DecodeImageBytes decodes data against every registered format, used to
// verify a freshly downloaded image is structurally valid before it is
// handed back to a caller (cover preview, page embed).
func DecodeImageBytes(data []byte) (image.Image, string, error) {
	return image.Decode(bytes.NewReader(data))
}
