package imgslice

// Resizing of an image and its box annotations.

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// InvalidSizeError reports a non-positive resize target.
type InvalidSizeError struct {
	Width, Height int
}

func (e *InvalidSizeError) Error() string {
	return fmt.Sprintf("invalid target size %dx%d: dimensions must be positive", e.Width, e.Height)
}

// InvalidFactorError reports a non-positive resize factor.
type InvalidFactorError struct {
	Factor float64
}

func (e *InvalidFactorError) Error() string {
	return fmt.Sprintf("invalid resize factor %v: must be greater than zero", e.Factor)
}

// ResizeConfig selects the resampling filters used for image resizing.
type ResizeConfig struct {
	Downsample imaging.ResampleFilter
	Upsample   imaging.ResampleFilter
}

// DefaultResizeConfig returns the default resampling filters: Box when
// shrinking, Linear when enlarging.
func DefaultResizeConfig() ResizeConfig {
	return ResizeConfig{Downsample: imaging.Box, Upsample: imaging.Linear}
}

// filterFor selects between the down- and upsampling filter based on the
// direction of the resampling operation.
func (cfg ResizeConfig) filterFor(srcArea, dstArea int) imaging.ResampleFilter {
	if dstArea < srcArea {
		return cfg.Downsample
	}
	return cfg.Upsample
}

// ResizeBySize resizes img and ann to newWidth by newHeight pixels, scaling
// every box by the per-axis factors. Either img or ann may be nil to resize
// only one modality, but not both. Boxes are never dropped; coordinates are
// rounded to the nearest pixel and clamped into the new extent.
func ResizeBySize(img image.Image, ann *Annotation, newWidth, newHeight int,
	cfg ResizeConfig) (image.Image, *Annotation, error) {

	if newWidth <= 0 || newHeight <= 0 {
		return nil, nil, &InvalidSizeError{Width: newWidth, Height: newHeight}
	}
	w, h, err := sourceExtent(img, ann)
	if err != nil {
		return nil, nil, err
	}

	var resized image.Image
	if img != nil {
		resized = imaging.Resize(img, newWidth, newHeight, cfg.filterFor(w*h, newWidth*newHeight))
	}

	var resizedAnn *Annotation
	if ann != nil {
		scaleX := float64(newWidth) / float64(w)
		scaleY := float64(newHeight) / float64(h)
		boxes := make([]Box, len(ann.Boxes))
		for i, b := range ann.Boxes {
			boxes[i] = scaleBox(b, scaleX, scaleY, newWidth, newHeight)
		}
		resizedAnn = ann.WithBoxes(boxes, newWidth, newHeight)
		if err := resizedAnn.BoxesWithinBounds(); err != nil {
			return nil, nil, err
		}
	}

	return resized, resizedAnn, nil
}

// ResizeByFactor resizes img and ann by a uniform scale factor. The target
// size is the source size multiplied by factor, rounded to the nearest pixel.
func ResizeByFactor(img image.Image, ann *Annotation, factor float64,
	cfg ResizeConfig) (image.Image, *Annotation, error) {

	if factor <= 0 {
		return nil, nil, &InvalidFactorError{Factor: factor}
	}
	w, h, err := sourceExtent(img, ann)
	if err != nil {
		return nil, nil, err
	}

	newWidth := int(math.Round(float64(w) * factor))
	newHeight := int(math.Round(float64(h) * factor))
	return ResizeBySize(img, ann, newWidth, newHeight, cfg)
}
