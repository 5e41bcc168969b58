package imgslice

// Slicing of an image and its box annotations into a grid of tiles.

import (
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"
)

// SliceConfig holds the per-call slicing options.
type SliceConfig struct {
	// KeepPartialLabels retains boxes that cross a tile boundary, clipped to
	// the tile extent. When false such boxes are dropped from the tile.
	KeepPartialLabels bool

	// IgnoreEmptyTiles drops tiles that retain no boxes after the partial
	// label policy is applied. Ignored when no annotations are being sliced.
	IgnoreEmptyTiles bool

	// Overlap is the shared pixel extent between adjacent tiles. Only used
	// when slicing by size.
	Overlap int
}

// DefaultSliceConfig returns the default slicing options: partial labels
// dropped, empty tiles ignored, no overlap.
func DefaultSliceConfig() SliceConfig {
	return SliceConfig{IgnoreEmptyTiles: true}
}

// AnnotationMismatchError reports an annotation whose recorded image size
// does not match the actual image.
type AnnotationMismatchError struct {
	Filename                string
	AnnWidth, AnnHeight     int
	ImageWidth, ImageHeight int
}

func (e *AnnotationMismatchError) Error() string {
	return fmt.Sprintf("annotation for %q declares size %dx%d but the image is %dx%d",
		e.Filename, e.AnnWidth, e.AnnHeight, e.ImageWidth, e.ImageHeight)
}

// TileResult is one output tile of a slicing call: the cropped image region
// and the tile-local annotation, under a generated tile name.
type TileResult struct {
	Name       string      // Generated tile name, without a file extension.
	Tile       Tile        // The tile geometry within the parent image.
	Image      image.Image // nil when slicing annotations only.
	Annotation *Annotation // nil when slicing images only.
}

// MappingEntry records the tile names generated for one source file.
type MappingEntry struct {
	OldName  string
	NewNames []string
}

// Slicer slices image and annotation pairs into tiles. Tile names are drawn
// from a single zero-padded monotonic counter, so all tiles produced through
// one Slicer share one continuous numbering sequence regardless of how many
// source files are processed.
//
// A Slicer may be shared by goroutines slicing independent pairs; naming and
// the before/after mapping are serialized internally.
type Slicer struct {
	mu      sync.Mutex
	nextID  int
	mapping []MappingEntry
}

// NewSlicer returns a Slicer whose tile numbering starts at 1.
func NewSlicer() *Slicer {
	return &Slicer{nextID: 1}
}

// SliceByNumber slices img and ann into exactly numTiles tiles, in row-major
// order. Either img or ann may be nil to slice only one modality, but not
// both. name is the source base name recorded in the before/after mapping;
// an empty name adds no mapping entry.
func (s *Slicer) SliceByNumber(name string, img image.Image, ann *Annotation,
	numTiles int, cfg SliceConfig) ([]TileResult, error) {

	w, h, err := sourceExtent(img, ann)
	if err != nil {
		return nil, err
	}
	tiles, err := PartitionByCount(w, h, numTiles)
	if err != nil {
		return nil, err
	}
	return s.assemble(name, img, ann, tiles, cfg)
}

// SliceBySize slices img and ann into tiles of exactly tileWidth by
// tileHeight pixels with cfg.Overlap shared pixels between adjacent tiles,
// in row-major order. Either img or ann may be nil to slice only one
// modality, but not both. name is the source base name recorded in the
// before/after mapping; an empty name adds no mapping entry.
func (s *Slicer) SliceBySize(name string, img image.Image, ann *Annotation,
	tileWidth, tileHeight int, cfg SliceConfig) ([]TileResult, error) {

	w, h, err := sourceExtent(img, ann)
	if err != nil {
		return nil, err
	}
	tiles, err := PartitionBySize(w, h, tileWidth, tileHeight, cfg.Overlap)
	if err != nil {
		return nil, err
	}
	return s.assemble(name, img, ann, tiles, cfg)
}

// sourceExtent determines the source pixel extent and checks that annotation
// and image dimensions agree when both are present.
func sourceExtent(img image.Image, ann *Annotation) (w, h int, err error) {
	if img == nil && ann == nil {
		return 0, 0, fmt.Errorf("need at least one of image and annotation")
	}
	if img == nil {
		return ann.Width, ann.Height, nil
	}

	b := img.Bounds()
	w, h = b.Dx(), b.Dy()
	if ann != nil && (ann.Width != w || ann.Height != h) {
		return 0, 0, &AnnotationMismatchError{
			Filename:  ann.Filename,
			AnnWidth:  ann.Width,
			AnnHeight: ann.Height,
			ImageWidth: w, ImageHeight: h,
		}
	}
	return w, h, nil
}

// assemble classifies every box against every tile, applies the empty tile
// policy, crops the tile images and assigns the tile names.
func (s *Slicer) assemble(name string, img image.Image, ann *Annotation,
	tiles []Tile, cfg SliceConfig) ([]TileResult, error) {

	var offset image.Point // Non-zero only when img is a sub-image.
	if img != nil {
		offset = img.Bounds().Min
	}

	results := make([]TileResult, 0, len(tiles))
	for _, t := range tiles {
		var tileAnn *Annotation
		if ann != nil {
			boxes := make([]Box, 0, len(ann.Boxes))
			for _, b := range ann.Boxes {
				if clipped, ok := classifyBox(b, t, cfg.KeepPartialLabels); ok {
					boxes = append(boxes, clipped)
				}
			}
			if len(boxes) == 0 && cfg.IgnoreEmptyTiles {
				continue
			}
			tileAnn = ann.WithBoxes(boxes, t.Width(), t.Height())
			if err := tileAnn.BoxesWithinBounds(); err != nil {
				return nil, err
			}
		}

		res := TileResult{Tile: t, Annotation: tileAnn}
		if img != nil {
			r := image.Rect(t.XMin, t.YMin, t.XMax, t.YMax).Add(offset)
			res.Image = imaging.Crop(img, r)
		}
		results = append(results, res)
	}

	s.assignNames(name, results)

	// Point each tile annotation at its own image file.
	if ann != nil {
		ext := filepath.Ext(ann.Filename)
		if ext == "" {
			ext = ".jpg"
		}
		for i := range results {
			results[i].Annotation.Filename = results[i].Name + ext
		}
	}

	return results, nil
}

// assignNames hands out the next block of tile names and records the
// before/after mapping entry for the source file.
func (s *Slicer) assignNames(sourceName string, results []TileResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, len(results))
	for i := range results {
		results[i].Name = fmt.Sprintf("%06d", s.nextID)
		names[i] = results[i].Name
		s.nextID++
	}
	if sourceName != "" {
		s.mapping = append(s.mapping, MappingEntry{OldName: sourceName, NewNames: names})
	}
}

// Mapping returns a copy of the accumulated before/after name mapping, one
// entry per sliced source file in completion order.
func (s *Slicer) Mapping() []MappingEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]MappingEntry, len(s.mapping))
	copy(out, s.mapping)
	return out
}

// TileCount returns the number of tile names handed out so far.
func (s *Slicer) TileCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextID - 1
}
