package imgslice

import (
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"

	// Decoder registration for the remaining supported source formats.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// The image file extensions accepted as slicing and resizing sources.
var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true,
	".tif": true, ".tiff": true, ".bmp": true, ".webp": true,
}

// isImageFile reports whether path has a supported image file extension.
func isImageFile(path string) bool {
	return imageExts[strings.ToLower(filepath.Ext(path))]
}

// loadImage reads and decodes the image at path and returns the results of
// image.Decode.
func loadImage(path string) (img image.Image, format string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	return image.Decode(f)
}

// saveImage encodes img to path as PNG, WebP or JPEG, depending on the file
// extension of path. quality applies to the lossy encodings.
func saveImage(path string, img image.Image, quality int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		err = png.Encode(f, img)
	case ".webp":
		err = webp.Encode(f, img, &webp.Options{Quality: float32(quality)})
	default:
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: quality})
	}
	return err
}
