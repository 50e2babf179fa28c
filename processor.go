// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package imagefetch

import (
	"bytes"
	"image"
	_ "image/gif" // register additional image formats
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/golang/glog"
	"github.com/muesli/smartcrop"
	"github.com/muesli/smartcrop/nfnt"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Image is a decoded image along with the details needed to display it.
type Image struct {
	image.Image

	// Format is the name of the format the image was decoded from, as
	// registered with the image package ("jpeg", "png", etc).
	Format string

	// Scale is the number of pixels per display point.
	Scale float64
}

// PointSize returns the display size of m, in points.
func (m *Image) PointSize() (w, h float64) {
	b := m.Bounds()
	scale := m.Scale
	if scale <= 0 {
		scale = 1
	}
	return float64(b.Dx()) / scale, float64(b.Dy()) / scale
}

// A Processor turns raw image bytes into an Image.  Process must not modify
// data and returns nil if data cannot be processed.  Implementations should
// be deterministic and safe for concurrent use.
type Processor interface {
	Process(data []byte) *Image
}

// ProcessorFunc adapts an ordinary function to the Processor interface.
type ProcessorFunc func(data []byte) *Image

// Process calls f(data).
func (f ProcessorFunc) Process(data []byte) *Image { return f(data) }

// DefaultProcessor decodes images at a scale of 1.
var DefaultProcessor Processor = DecodeProcessor{Scale: 1}

func process(p Processor, data []byte) *Image {
	if p == nil {
		p = DefaultProcessor
	}
	return p.Process(data)
}

// DecodeProcessor decodes images in any registered format (gif, jpeg, png,
// bmp, tiff, webp), applying the EXIF orientation of jpeg and tiff images.
type DecodeProcessor struct {
	// Scale is recorded on decoded images.  Zero means 1.
	Scale float64
}

// Process implements Processor.
func (p DecodeProcessor) Process(data []byte) *Image {
	if len(data) == 0 {
		return nil
	}

	m, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		glog.V(1).Infof("error decoding image: %v", err)
		return nil
	}
	if format == "jpeg" || format == "tiff" {
		m = orient(m, exifOrientation(data))
	}

	scale := p.Scale
	if scale <= 0 {
		scale = 1
	}
	return &Image{Image: m, Format: format, Scale: scale}
}

// exifOrientation returns the EXIF orientation tag of the image in data, or
// 0 if there is none.
func exifOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 0
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 0
	}
	o, err := tag.Int(0)
	if err != nil {
		return 0
	}
	return o
}

// orient transforms m so that it displays upright given its EXIF
// orientation.  See http://sylvana.net/jpegcrop/exif_orientation.html
func orient(m image.Image, orientation int) image.Image {
	switch orientation {
	case 2: // top right side
		return imaging.FlipH(m)
	case 3: // bottom right side
		return imaging.Rotate180(m)
	case 4: // bottom left side
		return imaging.FlipV(m)
	case 5: // left side top
		return imaging.Transpose(m)
	case 6: // right side top
		return imaging.Rotate270(m)
	case 7: // right side bottom
		return imaging.Transverse(m)
	case 8: // left side bottom
		return imaging.Rotate90(m)
	}
	return m
}

// SquareProcessor crops the images returned by Processor to a square whose
// side is the shorter dimension of the image.  Square images are returned
// unchanged.
type SquareProcessor struct {
	Processor Processor // nil means DefaultProcessor

	// If true, the crop region is chosen by content analysis rather than
	// centered.
	Smart bool
}

// Process implements Processor.
func (p SquareProcessor) Process(data []byte) *Image {
	m := process(p.Processor, data)
	if m == nil {
		return nil
	}

	b := m.Bounds()
	if b.Dx() == b.Dy() {
		return m
	}
	side := min(b.Dx(), b.Dy())

	var crop image.Image
	if p.Smart {
		analyzer := smartcrop.NewAnalyzer(nfnt.NewDefaultResizer())
		if r, err := analyzer.FindBestCrop(m.Image, side, side); err == nil && r.Dx() > 0 && r.Dy() > 0 {
			crop = imaging.Crop(m.Image, r)
		} else if err != nil {
			glog.V(1).Infof("smartcrop failed, using center crop: %v", err)
		}
	}
	if crop == nil {
		crop = imaging.CropCenter(m.Image, side, side)
	}
	return &Image{Image: crop, Format: m.Format, Scale: m.Scale}
}

// FitProcessor scales the images returned by Processor down to fit within
// Width and Height pixels, preserving aspect ratio.  A zero dimension is
// unconstrained.  Images are never scaled up.
type FitProcessor struct {
	Processor     Processor // nil means DefaultProcessor
	Width, Height int
}

// Process implements Processor.
func (p FitProcessor) Process(data []byte) *Image {
	m := process(p.Processor, data)
	if m == nil {
		return nil
	}

	b := m.Bounds()
	w, h := p.Width, p.Height
	if w <= 0 || w > b.Dx() {
		w = b.Dx()
	}
	if h <= 0 || h > b.Dy() {
		h = b.Dy()
	}
	if w == b.Dx() && h == b.Dy() {
		return m
	}

	return &Image{
		Image:  imaging.Fit(m.Image, w, h, imaging.Lanczos),
		Format: m.Format,
		Scale:  m.Scale,
	}
}
