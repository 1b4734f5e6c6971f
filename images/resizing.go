package images

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// DefaultJPEGQuality is the quality of JPEG thumbnails.
const DefaultJPEGQuality = 75

// Thumbnail scales a Mat to the given width, keeping its aspect ratio, and encodes
// it.
//
// Arguments:
//   - m: A single-channel or BGR Mat.
//   - width: Target width in pixels; 0 keeps the original width.
//   - format: The output encoding.
//
// Returns:
//   - Image: The encoded thumbnail.
//   - error: An error if the Mat is empty or cannot be converted or encoded.
func Thumbnail(m gocv.Mat, width int, format ImageFormat) (Image, error) {
	if m.Empty() {
		return Image{}, errors.New("thumbnail of empty mat")
	}

	src, err := m.ToImage()
	if err != nil {
		return Image{}, errors.Wrap(err, "convert mat to image")
	}

	img := src
	if width > 0 && width != src.Bounds().Dx() {
		img = resize.Resize(uint(width), 0, src, resize.Bilinear)
	}

	data, err := Encode(img, format)
	if err != nil {
		return Image{}, err
	}
	return Image{
		Format: format,
		Data:   data,
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
	}, nil
}

// Encode encodes img in the given format.
func Encode(img image.Image, format ImageFormat) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: DefaultJPEGQuality}); err != nil {
			return nil, errors.Wrap(err, "encode jpeg")
		}
	case FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, errors.Wrap(err, "encode png")
		}
	default:
		return nil, errors.Errorf("unsupported image format %q", format)
	}
	return buf.Bytes(), nil
}
