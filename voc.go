package imgslice

// Pascal VOC annotation file functionality.

import (
	"encoding/xml"
	"fmt"
	"io/ioutil"
)

// VOCBndBox is the <bndbox> element of a VOC object.
type VOCBndBox struct {
	XMin int `xml:"xmin"`
	YMin int `xml:"ymin"`
	XMax int `xml:"xmax"`
	YMax int `xml:"ymax"`
}

// VOCObject is one <object> element in a VOC annotation file.
type VOCObject struct {
	Name      string    `xml:"name"`
	Pose      string    `xml:"pose,omitempty"`
	Truncated int       `xml:"truncated"`
	Difficult int       `xml:"difficult"`
	BndBox    VOCBndBox `xml:"bndbox"`
}

// VOCSize is the <size> element of a VOC annotation file.
type VOCSize struct {
	Width  int `xml:"width"`
	Height int `xml:"height"`
	Depth  int `xml:"depth"`
}

// VOCAnnotation is the root <annotation> element of a VOC annotation file.
type VOCAnnotation struct {
	XMLName  xml.Name    `xml:"annotation"`
	Folder   string      `xml:"folder,omitempty"`
	Filename string      `xml:"filename"`
	Size     VOCSize     `xml:"size"`
	Objects  []VOCObject `xml:"object"`
}

// FromVOC reads and parses the Pascal VOC annotation file at path.
func FromVOC(path string) (*Annotation, error) {
	enc, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var voc VOCAnnotation
	if err := xml.Unmarshal(enc, &voc); err != nil {
		return nil, fmt.Errorf("failed to parse VOC input from %q: %v", path, err)
	}

	// Convert to the in-memory representation.
	ann := &Annotation{
		Filename: voc.Filename,
		Width:    voc.Size.Width,
		Height:   voc.Size.Height,
		Boxes:    make([]Box, len(voc.Objects)),
	}
	for i, o := range voc.Objects {
		ann.Boxes[i] = Box{
			Label:     o.Name,
			XMin:      o.BndBox.XMin,
			YMin:      o.BndBox.YMin,
			XMax:      o.BndBox.XMax,
			YMax:      o.BndBox.YMax,
			Pose:      o.Pose,
			Truncated: o.Truncated,
			Difficult: o.Difficult,
		}
	}

	return ann, nil
}

// ToVOC converts the in-memory representation to the VOC structure.
func ToVOC(ann *Annotation) VOCAnnotation {
	voc := VOCAnnotation{
		Filename: ann.Filename,
		Size:     VOCSize{Width: ann.Width, Height: ann.Height, Depth: 3},
		Objects:  make([]VOCObject, len(ann.Boxes)),
	}
	for i, b := range ann.Boxes {
		voc.Objects[i] = VOCObject{
			Name:      b.Label,
			Pose:      b.Pose,
			Truncated: b.Truncated,
			Difficult: b.Difficult,
			BndBox:    VOCBndBox{XMin: b.XMin, YMin: b.YMin, XMax: b.XMax, YMax: b.YMax},
		}
	}
	return voc
}

// WriteVOC writes ann to outFile as a Pascal VOC annotation.
func WriteVOC(outFile string, ann *Annotation) error {
	enc, err := xml.MarshalIndent(ToVOC(ann), "", "  ")
	if err != nil {
		return err
	}
	if err := ioutil.WriteFile(outFile, enc, 0644); err != nil {
		return fmt.Errorf("cannot write file %q: %v", outFile, err)
	}
	return nil
}
