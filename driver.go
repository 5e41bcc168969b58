package imgslice

// Batch processing of a directory of image and annotation pairs.

import (
	"encoding/csv"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
)

// MapperFileName is the name of the before/after mapping file written into
// the destination directory when mapping is enabled.
const MapperFileName = "mapper.csv"

// DirConfig holds the source and destination directories for a batch run.
//
// Leaving the image pair or the annotation pair empty processes only the
// other modality; at least one source must be set.
type DirConfig struct {
	ImageSrc string // Directory with the source images.
	AnnSrc   string // Directory with the VOC annotation files.
	ImageDst string // Directory receiving the processed images.
	AnnDst   string // Directory receiving the processed annotations.
}

// Validate checks that the configured source directories exist and creates
// the destination directories.
func (c DirConfig) Validate() error {
	if c.ImageSrc == "" && c.AnnSrc == "" {
		return fmt.Errorf("at least one of the image and annotation source directories must be set")
	}
	if c.ImageSrc != "" && c.ImageDst == "" {
		return fmt.Errorf("an image destination directory is required when an image source is set")
	}
	if c.AnnSrc != "" && c.AnnDst == "" {
		return fmt.Errorf("an annotation destination directory is required when an annotation source is set")
	}

	for _, src := range []string{c.ImageSrc, c.AnnSrc} {
		if src == "" {
			continue
		}
		if info, err := os.Stat(src); err != nil || !info.IsDir() {
			return fmt.Errorf("cannot read source directory %q: %v", src, err)
		}
	}
	for _, dst := range []string{c.ImageDst, c.AnnDst} {
		if dst == "" {
			continue
		}
		if err := os.MkdirAll(dst, 0755); err != nil {
			return fmt.Errorf("cannot create destination directory %q: %v", dst, err)
		}
	}

	return nil
}

// Driver iterates the configured directories and applies a slicing or
// resizing operation to every image/annotation pair. Pairs are processed
// concurrently and independently; a pair that fails is logged and skipped
// without affecting the rest of the batch.
type Driver struct {
	Dirs DirConfig

	// SaveMapping writes the before/after name mapping to mapper.csv in the
	// image (or, failing that, annotation) destination after a slicing run.
	SaveMapping bool

	// JPEGQuality is the quality for lossy image encodings. Zero selects 90.
	JPEGQuality int

	// Workers bounds the number of concurrently processed pairs. Zero
	// selects the number of CPUs.
	Workers int
}

// pair is one unit of batch work: the matched files for one base name.
type pair struct {
	name      string // Base file name without extension.
	imagePath string // Empty in annotation-only mode.
	annPath   string // Empty in image-only mode.
}

// SliceByNumber slices every pair in the source directories into exactly
// numTiles tiles and writes the tile images and annotations to the
// destination directories.
func (d *Driver) SliceByNumber(numTiles int, cfg SliceConfig) error {
	return d.slice(func(s *Slicer, p pair, img image.Image, ann *Annotation) ([]TileResult, error) {
		return s.SliceByNumber(p.name, img, ann, numTiles, cfg)
	})
}

// SliceBySize slices every pair in the source directories into tiles of
// tileWidth by tileHeight pixels and writes the tile images and annotations
// to the destination directories.
func (d *Driver) SliceBySize(tileWidth, tileHeight int, cfg SliceConfig) error {
	return d.slice(func(s *Slicer, p pair, img image.Image, ann *Annotation) ([]TileResult, error) {
		return s.SliceBySize(p.name, img, ann, tileWidth, tileHeight, cfg)
	})
}

// sliceFn applies one slicing operation to a loaded pair.
type sliceFn func(s *Slicer, p pair, img image.Image, ann *Annotation) ([]TileResult, error)

// slice runs fn over all pairs, persists the resulting tiles and finally
// writes the mapping file if requested.
func (d *Driver) slice(fn sliceFn) error {
	if err := d.Dirs.Validate(); err != nil {
		return err
	}
	pairs, err := d.pairs()
	if err != nil {
		return err
	}

	s := NewSlicer()
	d.forEachPair(pairs, func(p pair) error {
		img, ann, ext, err := d.loadPair(p)
		if err != nil {
			return err
		}
		results, err := fn(s, p, img, ann)
		if err != nil {
			return err
		}

		for _, r := range results {
			if r.Image != nil {
				path := filepath.Join(d.Dirs.ImageDst, r.Name+ext)
				if err := saveImage(path, r.Image, d.jpegQuality()); err != nil {
					return err
				}
			}
			if r.Annotation != nil {
				path := filepath.Join(d.Dirs.AnnDst, r.Name+".xml")
				if err := WriteVOC(path, r.Annotation); err != nil {
					return err
				}
			}
		}
		return nil
	})
	log.Printf("Obtained %d tiles from %d files", s.TileCount(), len(pairs))

	if d.SaveMapping {
		dst := d.Dirs.ImageDst
		if dst == "" {
			dst = d.Dirs.AnnDst
		}
		return writeMapperCSV(filepath.Join(dst, MapperFileName), s.Mapping())
	}
	return nil
}

// ResizeBySize resizes every pair in the source directories to newWidth by
// newHeight pixels, keeping the original file names.
func (d *Driver) ResizeBySize(newWidth, newHeight int, cfg ResizeConfig) error {
	return d.resize(func(img image.Image, ann *Annotation) (image.Image, *Annotation, error) {
		return ResizeBySize(img, ann, newWidth, newHeight, cfg)
	})
}

// ResizeByFactor resizes every pair in the source directories by a uniform
// scale factor, keeping the original file names.
func (d *Driver) ResizeByFactor(factor float64, cfg ResizeConfig) error {
	return d.resize(func(img image.Image, ann *Annotation) (image.Image, *Annotation, error) {
		return ResizeByFactor(img, ann, factor, cfg)
	})
}

// resizeFn applies one resizing operation to a loaded pair.
type resizeFn func(img image.Image, ann *Annotation) (image.Image, *Annotation, error)

// resize runs fn over all pairs and persists the results under the original
// base names.
func (d *Driver) resize(fn resizeFn) error {
	if err := d.Dirs.Validate(); err != nil {
		return err
	}
	pairs, err := d.pairs()
	if err != nil {
		return err
	}

	d.forEachPair(pairs, func(p pair) error {
		img, ann, ext, err := d.loadPair(p)
		if err != nil {
			return err
		}
		resized, resizedAnn, err := fn(img, ann)
		if err != nil {
			return err
		}

		if resized != nil {
			path := filepath.Join(d.Dirs.ImageDst, p.name+ext)
			if err := saveImage(path, resized, d.jpegQuality()); err != nil {
				return err
			}
		}
		if resizedAnn != nil {
			path := filepath.Join(d.Dirs.AnnDst, p.name+".xml")
			if err := WriteVOC(path, resizedAnn); err != nil {
				return err
			}
		}
		return nil
	})
	log.Printf("Resized %d files", len(pairs))

	return nil
}

// pairs scans the configured source directories and matches image and
// annotation files by base name. When both sources are configured, every
// image must have its annotation counterpart and vice versa.
func (d *Driver) pairs() ([]pair, error) {
	var imagesByName, annsByName map[string]string

	if d.Dirs.ImageSrc != "" {
		files, err := filesByExtInDir(d.Dirs.ImageSrc, "")
		if err != nil {
			return nil, err
		}
		images := files[:0]
		for _, f := range files {
			if isImageFile(f) {
				images = append(images, f)
			}
		}
		imagesByName = mapFileNamesToPaths(images)
	}
	if d.Dirs.AnnSrc != "" {
		files, err := filesByExtInDir(d.Dirs.AnnSrc, ".xml")
		if err != nil {
			return nil, err
		}
		annsByName = mapFileNamesToPaths(files)
	}

	names := make([]string, 0, len(imagesByName)+len(annsByName))
	switch {
	case imagesByName != nil && annsByName != nil:
		if len(imagesByName) != len(annsByName) {
			return nil, fmt.Errorf("found %d images in %q but %d annotations in %q",
				len(imagesByName), d.Dirs.ImageSrc, len(annsByName), d.Dirs.AnnSrc)
		}
		for name := range imagesByName {
			if _, ok := annsByName[name]; !ok {
				return nil, fmt.Errorf("image %q has no annotation file in %q", name, d.Dirs.AnnSrc)
			}
			names = append(names, name)
		}
	case imagesByName != nil:
		for name := range imagesByName {
			names = append(names, name)
		}
	default:
		for name := range annsByName {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	pairs := make([]pair, len(names))
	for i, name := range names {
		pairs[i] = pair{name: name, imagePath: imagesByName[name], annPath: annsByName[name]}
	}
	return pairs, nil
}

// loadPair loads the image and parses the annotation of one pair. ext is the
// file extension, dot included, used for the pair's output images.
func (d *Driver) loadPair(p pair) (img image.Image, ann *Annotation, ext string, err error) {
	ext = ".jpg"
	if p.imagePath != "" {
		img, _, err = loadImage(p.imagePath)
		if err != nil {
			return nil, nil, "", err
		}
		ext = strings.ToLower(filepath.Ext(p.imagePath))
	}
	if p.annPath != "" {
		ann, err = FromVOC(p.annPath)
		if err != nil {
			return nil, nil, "", err
		}
		if img == nil && filepath.Ext(ann.Filename) != "" {
			ext = strings.ToLower(filepath.Ext(ann.Filename))
		}
	}
	return img, ann, ext, nil
}

// forEachPair feeds the pairs through a bounded worker pool. A pair that
// fails is logged and skipped; the batch always runs to completion.
func (d *Driver) forEachPair(pairs []pair, fn func(pair) error) {
	workers := d.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if len(pairs) < workers {
		workers = len(pairs)
	}
	work := make(chan pair, 2*workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for p := range work {
				if err := fn(p); err != nil {
					log.Printf("Skipping %q: %v", p.name, err)
				}
			}
		}()
	}

	for _, p := range pairs {
		work <- p
	}
	close(work)
	wg.Wait()
}

func (d *Driver) jpegQuality() int {
	if d.JPEGQuality < 1 || d.JPEGQuality > 100 {
		return 90
	}
	return d.JPEGQuality
}

// writeMapperCSV writes the before/after name mapping with an
// "old_name,new_names" header, the new names joined by commas.
func writeMapperCSV(path string, entries []MappingEntry) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create the mapping file %q: %v", path, err)
	}
	defer closeWithErrCheck(f, &err)

	w := csv.NewWriter(f)
	if err := w.Write([]string{"old_name", "new_names"}); err != nil {
		return err
	}
	for _, e := range entries {
		if err := w.Write([]string{e.OldName, strings.Join(e.NewNames, ",")}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// readMapperCSV reads a mapping file written by writeMapperCSV.
func readMapperCSV(path string) (entries []MappingEntry, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer closeWithErrCheck(f, &err)

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse the mapping file %q: %v", path, err)
	}
	for i, rec := range records {
		if i == 0 && len(rec) > 0 && rec[0] == "old_name" {
			continue // Header.
		}
		if len(rec) != 2 {
			return nil, fmt.Errorf("unexpected record in %q: %v", path, rec)
		}
		entries = append(entries, MappingEntry{OldName: rec[0], NewNames: strings.Split(rec[1], ",")})
	}
	return entries, nil
}
