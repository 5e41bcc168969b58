package imgslice

// Rendering of box overlays for visual inspection of slicing results.

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math/rand"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// DrawBoxes returns a copy of img with the annotation's boxes drawn as
// rectangle outlines of the given color and line thickness.
func DrawBoxes(img image.Image, ann *Annotation, c color.Color, thickness int) *image.NRGBA {
	if thickness < 1 {
		thickness = 1
	}
	out := imaging.Clone(img)
	for _, b := range ann.Boxes {
		drawRectOutline(out, b, c, thickness)
	}
	return out
}

// drawRectOutline draws the four edges of b onto img, clipped to the image.
func drawRectOutline(img *image.NRGBA, b Box, c color.Color, thickness int) {
	fill := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(b.XMin, b.YMin, b.XMax, b.YMin+thickness), // Top.
		image.Rect(b.XMin, b.YMax-thickness, b.XMax, b.YMax), // Bottom.
		image.Rect(b.XMin, b.YMin, b.XMin+thickness, b.YMax), // Left.
		image.Rect(b.XMax-thickness, b.YMin, b.XMax, b.YMax), // Right.
	}
	for _, e := range edges {
		draw.Draw(img, e.Intersect(img.Bounds()), fill, image.Point{}, draw.Src)
	}
}

// overlayColor is the outline color used by VisualizeRandom.
var overlayColor = color.NRGBA{B: 255, A: 255}

// VisualizeRandom picks one entry of the mapping file produced by a slicing
// run at random and writes box overlay images for the source file and all of
// its tiles into outDir. It requires both image and annotation directories
// to be configured and the mapping to have been saved.
func (d *Driver) VisualizeRandom(outDir string) error {
	entries, err := readMapperCSV(filepath.Join(d.Dirs.ImageDst, MapperFileName))
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("the mapping file has no entries")
	}

	e := entries[rand.Intn(len(entries))]
	if err := d.writeOverlay(d.Dirs.ImageSrc, d.Dirs.AnnSrc, e.OldName, outDir); err != nil {
		return err
	}
	for _, name := range e.NewNames {
		if err := d.writeOverlay(d.Dirs.ImageDst, d.Dirs.AnnDst, name, outDir); err != nil {
			return err
		}
	}
	return nil
}

// writeOverlay renders the overlay for the base name found in imgDir/annDir
// and saves it to outDir under the same name with an "_boxes" suffix.
func (d *Driver) writeOverlay(imgDir, annDir, name, outDir string) error {
	files, err := filesByExtInDir(imgDir, "")
	if err != nil {
		return err
	}
	paths := mapFileNamesToPaths(files)
	imgPath, ok := paths[name]
	if !ok || !isImageFile(imgPath) {
		return fmt.Errorf("no image file named %q in %q", name, imgDir)
	}

	img, _, err := loadImage(imgPath)
	if err != nil {
		return err
	}
	ann, err := FromVOC(filepath.Join(annDir, name+".xml"))
	if err != nil {
		return err
	}

	overlay := DrawBoxes(img, ann, overlayColor, 3)
	out := filepath.Join(outDir, name+"_boxes"+filepath.Ext(imgPath))
	return saveImage(out, overlay, d.jpegQuality())
}
