package imgslice

// The in-memory representation of one image's box annotations.

import "fmt"

// Box is an axis-aligned bounding box with a class label. Coordinates are
// absolute pixel offsets from the top-left corner of the image the box
// belongs to, with XMin < XMax and YMin < YMax.
type Box struct {
	Label                  string
	XMin, YMin, XMax, YMax int

	// Optional object flags from the annotation source, carried through
	// transforms unchanged.
	Pose      string
	Truncated int
	Difficult int
}

// Width is the box width in pixels.
func (b Box) Width() int { return b.XMax - b.XMin }

// Height is the box height in pixels.
func (b Box) Height() int { return b.YMax - b.YMin }

// Annotation holds the box annotations and image-level metadata for a single
// image. Transforms never modify an Annotation in place; they derive new
// instances via WithBoxes.
type Annotation struct {
	Filename string // The annotated image file name.
	Width    int    // Image width in pixels.
	Height   int    // Image height in pixels.
	Boxes    []Box
}

// WithBoxes returns a new Annotation for the same source file with the given
// boxes and image extent. The receiver is left untouched.
func (a *Annotation) WithBoxes(boxes []Box, width, height int) *Annotation {
	return &Annotation{
		Filename: a.Filename,
		Width:    width,
		Height:   height,
		Boxes:    boxes,
	}
}

// BoundsViolationError reports a box that lies outside its image extent.
// Clipping and clamping keep transformed boxes in bounds, so hitting this
// error indicates a defect in the transform that produced the box.
type BoundsViolationError struct {
	Box           Box
	Width, Height int
}

func (e *BoundsViolationError) Error() string {
	return fmt.Sprintf("box %q (%d,%d,%d,%d) lies outside the %dx%d image bounds",
		e.Box.Label, e.Box.XMin, e.Box.YMin, e.Box.XMax, e.Box.YMax, e.Width, e.Height)
}

// BoxesWithinBounds verifies that every box lies within the image extent.
func (a *Annotation) BoxesWithinBounds() error {
	for _, b := range a.Boxes {
		if b.XMin < 0 || b.YMin < 0 || b.XMax > a.Width || b.YMax > a.Height {
			return &BoundsViolationError{Box: b, Width: a.Width, Height: a.Height}
		}
	}
	return nil
}
