// Package images - Named capture resolutions for webcams.
package images

import (
	"fmt"
	"image"
	"math"
	"sort"
	"strings"
)

// AspectRatio represents an aspect ratio by name (e.g., "16:9").
type AspectRatio string

// Aspect ratios of the supported capture modes.
const (
	AspectRatio169 AspectRatio = "16:9"
	AspectRatio43  AspectRatio = "4:3"
)

// ResolutionType is the common name of a capture resolution.
type ResolutionType string

// Capture modes most USB and built-in webcams expose.
const (
	ResolutionTypeQVGA     ResolutionType = "QVGA"
	ResolutionTypeVGA      ResolutionType = "VGA"
	ResolutionTypeNHD      ResolutionType = "nHD"
	ResolutionTypeSVGA     ResolutionType = "SVGA"
	ResolutionTypeQHD540   ResolutionType = "qHD 540p"
	ResolutionTypeXGA      ResolutionType = "XGA"
	ResolutionTypeHD720p   ResolutionType = "HD 720p"
	ResolutionTypeFHD1080p ResolutionType = "Full HD 1080p"
)

// ResolutionPixels describes the exact dimensions of a resolution.
type ResolutionPixels struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Point returns the dimensions as an image.Point.
func (p ResolutionPixels) Point() image.Point {
	return image.Pt(p.Width, p.Height)
}

// Resolution describes a capture mode.
type Resolution struct {
	Name        ResolutionType   `json:"name"`
	AspectRatio AspectRatio      `json:"aspectRatio"`
	Pixels      ResolutionPixels `json:"pixels"`
}

// GetMegaPixels returns the pixel count in megapixels rounded to two decimals.
func (r Resolution) GetMegaPixels() float64 {
	if r.Pixels.Width <= 0 || r.Pixels.Height <= 0 {
		return 0.0
	}
	mp := float64(r.Pixels.Width*r.Pixels.Height) / 1_000_000.0
	return math.Round(mp*100) / 100
}

// String returns a human-readable summary of the resolution.
func (r Resolution) String() string {
	return fmt.Sprintf("%s (%dx%d, %.2fMP)", r.Name, r.Pixels.Width, r.Pixels.Height, r.GetMegaPixels())
}

var resolutions = map[ResolutionType]Resolution{
	ResolutionTypeQVGA: {
		Name:        ResolutionTypeQVGA,
		AspectRatio: AspectRatio43,
		Pixels:      ResolutionPixels{Width: 320, Height: 240},
	},
	ResolutionTypeVGA: {
		Name:        ResolutionTypeVGA,
		AspectRatio: AspectRatio43,
		Pixels:      ResolutionPixels{Width: 640, Height: 480},
	},
	ResolutionTypeNHD: {
		Name:        ResolutionTypeNHD,
		AspectRatio: AspectRatio169,
		Pixels:      ResolutionPixels{Width: 640, Height: 360},
	},
	ResolutionTypeSVGA: {
		Name:        ResolutionTypeSVGA,
		AspectRatio: AspectRatio43,
		Pixels:      ResolutionPixels{Width: 800, Height: 600},
	},
	ResolutionTypeQHD540: {
		Name:        ResolutionTypeQHD540,
		AspectRatio: AspectRatio169,
		Pixels:      ResolutionPixels{Width: 960, Height: 540},
	},
	ResolutionTypeXGA: {
		Name:        ResolutionTypeXGA,
		AspectRatio: AspectRatio43,
		Pixels:      ResolutionPixels{Width: 1024, Height: 768},
	},
	ResolutionTypeHD720p: {
		Name:        ResolutionTypeHD720p,
		AspectRatio: AspectRatio169,
		Pixels:      ResolutionPixels{Width: 1280, Height: 720},
	},
	ResolutionTypeFHD1080p: {
		Name:        ResolutionTypeFHD1080p,
		AspectRatio: AspectRatio169,
		Pixels:      ResolutionPixels{Width: 1920, Height: 1080},
	},
}

// GetResolutionByType looks up a resolution by its exact name.
func GetResolutionByType(t ResolutionType) (Resolution, bool) {
	r, ok := resolutions[t]
	return r, ok
}

// LookupResolution resolves a configuration value to a resolution. Names match
// case-insensitively and also accept the short forms "720p" and "1080p".
func LookupResolution(name string) (Resolution, bool) {
	name = strings.TrimSpace(name)
	if r, ok := GetResolutionByType(ResolutionType(name)); ok {
		return r, true
	}
	switch key := strings.ToLower(name); key {
	case "720p":
		return GetResolutionByType(ResolutionTypeHD720p)
	case "1080p":
		return GetResolutionByType(ResolutionTypeFHD1080p)
	default:
		for _, r := range GetAllResolutions() {
			if strings.ToLower(string(r.Name)) == key {
				return r, true
			}
		}
	}
	return Resolution{}, false
}

// ResolutionNames lists the preset names ordered by pixel count.
func ResolutionNames() []string {
	all := GetAllResolutions()
	names := make([]string, len(all))
	for i, r := range all {
		names[i] = string(r.Name)
	}
	return names
}

// GetAllResolutions returns every resolution ordered by pixel count, then width.
func GetAllResolutions() []Resolution {
	all := make([]Resolution, 0, len(resolutions))
	for _, r := range resolutions {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool {
		pi := all[i].Pixels.Width * all[i].Pixels.Height
		pj := all[j].Pixels.Width * all[j].Pixels.Height
		if pi != pj {
			return pi < pj
		}
		return all[i].Pixels.Width < all[j].Pixels.Width
	})
	return all
}

// GetHighestResolutionUnderDimensions returns the largest resolution that fits
// within width x height.
func GetHighestResolutionUnderDimensions(width, height int) (Resolution, bool) {
	var best Resolution
	found := false
	for _, r := range GetAllResolutions() {
		if r.Pixels.Width <= width && r.Pixels.Height <= height {
			best = r
			found = true
		}
	}
	return best, found
}
