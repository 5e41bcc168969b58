package imgslice

// Partition geometry and coordinate transforms for tiles and boxes.

import (
	"fmt"
	"math"
)

// Tile is one cell of a partition grid. Its coordinates are absolute pixel
// offsets within the parent image.
type Tile struct {
	XMin, YMin, XMax, YMax int
	Row, Col               int
	Overlap                int // Shared pixel extent with adjacent tiles.
}

// Width is the tile width in pixels.
func (t Tile) Width() int { return t.XMax - t.XMin }

// Height is the tile height in pixels.
func (t Tile) Height() int { return t.YMax - t.YMin }

// InvalidTileCountError reports a tile count that cannot form a partition.
type InvalidTileCountError struct {
	NumTiles int
}

func (e *InvalidTileCountError) Error() string {
	return fmt.Sprintf("invalid tile count %d: must be at least 1", e.NumTiles)
}

// InvalidTileSizeError reports tile dimensions or an overlap that cannot form
// a partition of the given image.
type InvalidTileSizeError struct {
	TileWidth, TileHeight   int
	Overlap                 int
	ImageWidth, ImageHeight int
	Reason                  string
}

func (e *InvalidTileSizeError) Error() string {
	return fmt.Sprintf("invalid tile size %dx%d (overlap %d) for image %dx%d: %s",
		e.TileWidth, e.TileHeight, e.Overlap, e.ImageWidth, e.ImageHeight, e.Reason)
}

// PartitionByCount partitions an imageWidth by imageHeight pixel grid into
// exactly numTiles cells in row-major order.
//
// numTiles is factored into a rows*cols grid whose rows/cols ratio is closest
// to the image height/width ratio, ties going to the smaller row count. Cell
// boundaries are spread evenly, so the cells cover the image exactly with no
// gaps and no overlap; cell extents differ by at most one pixel when the
// image dimensions are not divisible by the grid.
func PartitionByCount(imageWidth, imageHeight, numTiles int) ([]Tile, error) {
	if numTiles < 1 {
		return nil, &InvalidTileCountError{NumTiles: numTiles}
	}
	if imageWidth < 1 || imageHeight < 1 {
		return nil, fmt.Errorf("invalid image size %dx%d: dimensions must be positive", imageWidth, imageHeight)
	}

	rows, cols := factorGrid(imageWidth, imageHeight, numTiles)
	tiles := make([]Tile, 0, numTiles)
	for r := 0; r < rows; r++ {
		y1 := r * imageHeight / rows
		y2 := (r + 1) * imageHeight / rows
		for c := 0; c < cols; c++ {
			tiles = append(tiles, Tile{
				XMin: c * imageWidth / cols,
				YMin: y1,
				XMax: (c + 1) * imageWidth / cols,
				YMax: y2,
				Row:  r,
				Col:  c,
			})
		}
	}

	return tiles, nil
}

// factorGrid selects the rows*cols == n factor pair whose rows/cols ratio is
// closest to the image height/width ratio. Ties go to the smaller row count.
func factorGrid(imageWidth, imageHeight, n int) (rows, cols int) {
	target := float64(imageHeight) / float64(imageWidth)
	best := math.Inf(1)
	for r := 1; r <= n; r++ {
		if n%r != 0 {
			continue
		}
		c := n / r
		if diff := math.Abs(float64(r)/float64(c) - target); diff < best {
			best = diff
			rows, cols = r, c
		}
	}
	return rows, cols
}

// PartitionBySize partitions an imageWidth by imageHeight pixel grid into
// tiles of exactly tileWidth by tileHeight pixels, in row-major order, with
// adjacent tiles sharing overlap pixels along each axis.
//
// When the stride does not divide the image evenly, the final row and column
// are shifted backward rather than truncated, so every tile keeps the
// requested extent and the last tile ends exactly at the image edge.
func PartitionBySize(imageWidth, imageHeight, tileWidth, tileHeight, overlap int) ([]Tile, error) {
	e := &InvalidTileSizeError{
		TileWidth: tileWidth, TileHeight: tileHeight, Overlap: overlap,
		ImageWidth: imageWidth, ImageHeight: imageHeight,
	}
	switch {
	case tileWidth <= 0 || tileHeight <= 0:
		e.Reason = "tile dimensions must be positive"
		return nil, e
	case overlap < 0:
		e.Reason = "overlap must not be negative"
		return nil, e
	case overlap >= tileWidth || overlap >= tileHeight:
		e.Reason = "overlap must be smaller than the tile dimensions"
		return nil, e
	case tileWidth > imageWidth || tileHeight > imageHeight:
		e.Reason = "tile size exceeds image size"
		return nil, e
	}

	xs := axisOffsets(imageWidth, tileWidth, overlap)
	ys := axisOffsets(imageHeight, tileHeight, overlap)
	tiles := make([]Tile, 0, len(xs)*len(ys))
	for r, y := range ys {
		for c, x := range xs {
			tiles = append(tiles, Tile{
				XMin: x, YMin: y, XMax: x + tileWidth, YMax: y + tileHeight,
				Row: r, Col: c, Overlap: overlap,
			})
		}
	}

	return tiles, nil
}

// axisOffsets returns the tile start offsets along one axis. The last offset
// is pulled back so the final tile ends exactly at the image edge instead of
// leaving an undersized remainder.
func axisOffsets(imageExtent, tileExtent, overlap int) []int {
	stride := tileExtent - overlap
	offsets := []int{0}
	for x := stride; x+tileExtent < imageExtent; x += stride {
		offsets = append(offsets, x)
	}
	if last := imageExtent - tileExtent; last > offsets[len(offsets)-1] {
		offsets = append(offsets, last)
	}
	return offsets
}

// clipBoxToTile re-expresses box in tile-local coordinates and clips it to
// the tile extent. ok is false when box and tile do not intersect; a box that
// merely touches a tile edge from the outside does not intersect it, so a box
// whose far edge coincides with a tile boundary belongs only to the tile on
// the near side. wasPartial reports whether clipping changed any coordinate.
func clipBoxToTile(box Box, tile Tile) (clipped Box, wasPartial, ok bool) {
	clipped = box
	clipped.XMin = clamp(box.XMin-tile.XMin, 0, tile.Width())
	clipped.YMin = clamp(box.YMin-tile.YMin, 0, tile.Height())
	clipped.XMax = clamp(box.XMax-tile.XMin, 0, tile.Width())
	clipped.YMax = clamp(box.YMax-tile.YMin, 0, tile.Height())
	if clipped.XMax <= clipped.XMin || clipped.YMax <= clipped.YMin {
		return Box{}, false, false
	}

	wasPartial = clipped.XMin != box.XMin-tile.XMin ||
		clipped.YMin != box.YMin-tile.YMin ||
		clipped.XMax != box.XMax-tile.XMin ||
		clipped.YMax != box.YMax-tile.YMin
	return clipped, wasPartial, true
}

// classifyBox decides whether box belongs in tile. A box is included with its
// tile-local clipped coordinates when it intersects the tile, unless it only
// partially overlaps the tile and keepPartialLabels is false.
func classifyBox(box Box, tile Tile, keepPartialLabels bool) (Box, bool) {
	clipped, wasPartial, ok := clipBoxToTile(box, tile)
	if !ok || (wasPartial && !keepPartialLabels) {
		return Box{}, false
	}
	return clipped, true
}

// scaleBox multiplies the box coordinates by the per-axis scale factors,
// rounding to the nearest pixel and clamping into the resized image extent.
func scaleBox(box Box, scaleX, scaleY float64, newWidth, newHeight int) Box {
	scaled := box
	scaled.XMin = clamp(int(math.Round(float64(box.XMin)*scaleX)), 0, newWidth)
	scaled.YMin = clamp(int(math.Round(float64(box.YMin)*scaleY)), 0, newHeight)
	scaled.XMax = clamp(int(math.Round(float64(box.XMax)*scaleX)), 0, newWidth)
	scaled.YMax = clamp(int(math.Round(float64(box.YMax)*scaleY)), 0, newHeight)
	return scaled
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
