package imgslice

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeTestPair writes one PNG image and its matching VOC annotation into the
// given source directories.
func writeTestPair(t *testing.T, imgDir, annDir, name string, width, height int, boxes ...Box) {
	t.Helper()
	if err := saveImage(filepath.Join(imgDir, name+".png"), testImage(width, height), 90); err != nil {
		t.Fatalf("failed to write the test image: %v", err)
	}
	ann := &Annotation{Filename: name + ".png", Width: width, Height: height, Boxes: boxes}
	if err := WriteVOC(filepath.Join(annDir, name+".xml"), ann); err != nil {
		t.Fatalf("failed to write the test annotation: %v", err)
	}
}

func testDriver(t *testing.T) *Driver {
	t.Helper()
	root := t.TempDir()
	dirs := DirConfig{
		ImageSrc: filepath.Join(root, "images"),
		AnnSrc:   filepath.Join(root, "annotations"),
		ImageDst: filepath.Join(root, "sliced_images"),
		AnnDst:   filepath.Join(root, "sliced_annotations"),
	}
	for _, dir := range []string{dirs.ImageSrc, dirs.AnnSrc} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("failed to create %q: %v", dir, err)
		}
	}
	return &Driver{Dirs: dirs, Workers: 1}
}

func TestDriverSliceByNumber(t *testing.T) {
	d := testDriver(t)
	d.SaveMapping = true
	writeTestPair(t, d.Dirs.ImageSrc, d.Dirs.AnnSrc, "scene", 200, 200,
		Box{Label: "car", XMin: 10, YMin: 10, XMax: 90, YMax: 90})

	cfg := SliceConfig{IgnoreEmptyTiles: false}
	if err := d.SliceByNumber(4, cfg); err != nil {
		t.Fatalf("SliceByNumber failed: %v", err)
	}

	images, err := filepath.Glob(filepath.Join(d.Dirs.ImageDst, "*.png"))
	if err != nil || len(images) != 4 {
		t.Fatalf("expected 4 tile images, got %d (%v)", len(images), err)
	}
	anns, err := filepath.Glob(filepath.Join(d.Dirs.AnnDst, "*.xml"))
	if err != nil || len(anns) != 4 {
		t.Fatalf("expected 4 tile annotations, got %d (%v)", len(anns), err)
	}

	// The tile annotations are valid VOC files with tile-local geometry.
	ann, err := FromVOC(filepath.Join(d.Dirs.AnnDst, "000001.xml"))
	if err != nil {
		t.Fatalf("failed to parse a tile annotation: %v", err)
	}
	if ann.Width != 100 || ann.Height != 100 {
		t.Errorf("expected a 100x100 tile annotation, got %dx%d", ann.Width, ann.Height)
	}
	if len(ann.Boxes) != 1 || ann.Boxes[0].XMax != 90 {
		t.Errorf("unexpected tile boxes: %+v", ann.Boxes)
	}

	entries, err := readMapperCSV(filepath.Join(d.Dirs.ImageDst, MapperFileName))
	if err != nil {
		t.Fatalf("failed to read the mapping file: %v", err)
	}
	if len(entries) != 1 || entries[0].OldName != "scene" {
		t.Fatalf("unexpected mapping entries: %+v", entries)
	}
	if len(entries[0].NewNames) != 4 || entries[0].NewNames[0] != "000001" {
		t.Errorf("unexpected tile names: %v", entries[0].NewNames)
	}
}

func TestDriverSliceBySizeDropsEmptyTiles(t *testing.T) {
	d := testDriver(t)
	writeTestPair(t, d.Dirs.ImageSrc, d.Dirs.AnnSrc, "scene", 200, 200,
		Box{Label: "car", XMin: 10, YMin: 10, XMax: 90, YMax: 90})

	if err := d.SliceBySize(100, 100, DefaultSliceConfig()); err != nil {
		t.Fatalf("SliceBySize failed: %v", err)
	}

	images, _ := filepath.Glob(filepath.Join(d.Dirs.ImageDst, "*.png"))
	if len(images) != 1 {
		t.Fatalf("expected the 3 empty tiles dropped, got %d images", len(images))
	}
	if !strings.HasSuffix(images[0], "000001.png") {
		t.Errorf("unexpected tile image name: %q", images[0])
	}
}

func TestDriverResizeByFactor(t *testing.T) {
	d := testDriver(t)
	writeTestPair(t, d.Dirs.ImageSrc, d.Dirs.AnnSrc, "scene", 200, 100,
		Box{Label: "car", XMin: 20, YMin: 20, XMax: 60, YMax: 60})

	if err := d.ResizeByFactor(0.5, DefaultResizeConfig()); err != nil {
		t.Fatalf("ResizeByFactor failed: %v", err)
	}

	// Resizing keeps the original base names.
	img, _, err := loadImage(filepath.Join(d.Dirs.ImageDst, "scene.png"))
	if err != nil {
		t.Fatalf("failed to load the resized image: %v", err)
	}
	if bounds := img.Bounds(); bounds.Dx() != 100 || bounds.Dy() != 50 {
		t.Errorf("expected a 100x50 image, got %dx%d", bounds.Dx(), bounds.Dy())
	}

	ann, err := FromVOC(filepath.Join(d.Dirs.AnnDst, "scene.xml"))
	if err != nil {
		t.Fatalf("failed to parse the resized annotation: %v", err)
	}
	b := ann.Boxes[0]
	if b.XMin != 10 || b.YMin != 10 || b.XMax != 30 || b.YMax != 30 {
		t.Errorf("expected box (10,10,30,30), got (%d,%d,%d,%d)", b.XMin, b.YMin, b.XMax, b.YMax)
	}
}

func TestDriverAnnotationOnly(t *testing.T) {
	root := t.TempDir()
	dirs := DirConfig{
		AnnSrc: filepath.Join(root, "annotations"),
		AnnDst: filepath.Join(root, "sliced_annotations"),
	}
	if err := os.MkdirAll(dirs.AnnSrc, 0755); err != nil {
		t.Fatalf("failed to create %q: %v", dirs.AnnSrc, err)
	}
	ann := &Annotation{Filename: "scene.jpg", Width: 200, Height: 200,
		Boxes: []Box{{Label: "car", XMin: 10, YMin: 10, XMax: 90, YMax: 90}}}
	if err := WriteVOC(filepath.Join(dirs.AnnSrc, "scene.xml"), ann); err != nil {
		t.Fatalf("failed to write the test annotation: %v", err)
	}

	d := &Driver{Dirs: dirs, Workers: 1}
	if err := d.SliceByNumber(4, DefaultSliceConfig()); err != nil {
		t.Fatalf("SliceByNumber failed: %v", err)
	}

	anns, _ := filepath.Glob(filepath.Join(dirs.AnnDst, "*.xml"))
	if len(anns) != 1 {
		t.Fatalf("expected 1 non-empty tile annotation, got %d", len(anns))
	}
}

func TestDriverSkipsBrokenPairs(t *testing.T) {
	d := testDriver(t)
	writeTestPair(t, d.Dirs.ImageSrc, d.Dirs.AnnSrc, "good", 200, 200,
		Box{Label: "car", XMin: 10, YMin: 10, XMax: 90, YMax: 90})

	// A pair whose annotation disagrees with the image dimensions fails its
	// precondition; the batch must continue past it.
	if err := saveImage(filepath.Join(d.Dirs.ImageSrc, "bad.png"), testImage(200, 200), 90); err != nil {
		t.Fatalf("failed to write the test image: %v", err)
	}
	badAnn := &Annotation{Filename: "bad.png", Width: 100, Height: 100}
	if err := WriteVOC(filepath.Join(d.Dirs.AnnSrc, "bad.xml"), badAnn); err != nil {
		t.Fatalf("failed to write the test annotation: %v", err)
	}

	cfg := SliceConfig{IgnoreEmptyTiles: false}
	if err := d.SliceByNumber(4, cfg); err != nil {
		t.Fatalf("SliceByNumber failed: %v", err)
	}

	images, _ := filepath.Glob(filepath.Join(d.Dirs.ImageDst, "*.png"))
	if len(images) != 4 {
		t.Fatalf("expected 4 tiles from the good pair only, got %d", len(images))
	}
}

func TestDriverUnmatchedPair(t *testing.T) {
	d := testDriver(t)
	if err := saveImage(filepath.Join(d.Dirs.ImageSrc, "lonely.png"), testImage(100, 100), 90); err != nil {
		t.Fatalf("failed to write the test image: %v", err)
	}

	if err := d.SliceByNumber(4, DefaultSliceConfig()); err == nil {
		t.Fatal("expected an error for an image without its annotation")
	}
}

func TestDirConfigValidate(t *testing.T) {
	if err := (DirConfig{}).Validate(); err == nil {
		t.Error("expected an error for an empty configuration")
	}
	if err := (DirConfig{ImageSrc: "somewhere"}).Validate(); err == nil {
		t.Error("expected an error for a missing image destination")
	}

	root := t.TempDir()
	src := filepath.Join(root, "src")
	if err := os.MkdirAll(src, 0755); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(root, "dst")
	cfg := DirConfig{ImageSrc: src, ImageDst: dst}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if info, err := os.Stat(dst); err != nil || !info.IsDir() {
		t.Error("expected the destination directory to be created")
	}
}

func TestDriverVisualizeRandom(t *testing.T) {
	d := testDriver(t)
	d.SaveMapping = true
	writeTestPair(t, d.Dirs.ImageSrc, d.Dirs.AnnSrc, "scene", 200, 200,
		Box{Label: "car", XMin: 10, YMin: 10, XMax: 90, YMax: 90})

	cfg := SliceConfig{KeepPartialLabels: true, IgnoreEmptyTiles: false}
	if err := d.SliceByNumber(4, cfg); err != nil {
		t.Fatalf("SliceByNumber failed: %v", err)
	}

	outDir := t.TempDir()
	if err := d.VisualizeRandom(outDir); err != nil {
		t.Fatalf("VisualizeRandom failed: %v", err)
	}

	overlays, _ := filepath.Glob(filepath.Join(outDir, "*_boxes.png"))
	if len(overlays) != 5 { // Source plus 4 tiles.
		t.Fatalf("expected 5 overlay images, got %d", len(overlays))
	}
}
