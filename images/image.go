// Package images - Encoded preview images of pipeline buffers.
package images

// Image is an encoded image ready to be published.
type Image struct {
	Format ImageFormat `json:"format" yaml:"format"`
	Data   []byte      `json:"data" yaml:"data"`
	Width  int         `json:"width" yaml:"width"`
	Height int         `json:"height" yaml:"height"`
}

// ImageFormat is an encoding of Image.Data.
type ImageFormat string

const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
)
