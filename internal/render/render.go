package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/kdimtricp/objdetect/internal/models"
)

const (
	JPEGQuality = 90
	lineWidth   = 2
	labelPadX   = 3
)

var palette = []color.NRGBA{
	{R: 255, G: 56, B: 56, A: 255},
	{R: 255, G: 157, B: 151, A: 255},
	{R: 255, G: 112, B: 31, A: 255},
	{R: 255, G: 178, B: 29, A: 255},
	{R: 207, G: 210, B: 49, A: 255},
	{R: 72, G: 249, B: 10, A: 255},
	{R: 26, G: 147, B: 52, A: 255},
	{R: 0, G: 212, B: 187, A: 255},
	{R: 44, G: 153, B: 168, A: 255},
	{R: 0, G: 194, B: 255, A: 255},
	{R: 52, G: 69, B: 147, A: 255},
	{R: 100, G: 115, B: 255, A: 255},
	{R: 0, G: 24, B: 236, A: 255},
	{R: 132, G: 56, B: 255, A: 255},
	{R: 203, G: 56, B: 255, A: 255},
	{R: 255, G: 149, B: 200, A: 255},
}

func classColor(classID int) color.NRGBA {
	if classID < 0 {
		classID = -classID
	}
	return palette[classID%len(palette)]
}

// Annotate draws each detection's box and "name 0.87" label on a copy
// of img.
func Annotate(img image.Image, detections []models.Detection) *image.NRGBA {
	dst := imaging.Clone(img)
	face := basicfont.Face7x13

	for _, d := range detections {
		c := classColor(d.ClassID)
		rect := image.Rect(
			int(math.Round(d.BBox.X1)), int(math.Round(d.BBox.Y1)),
			int(math.Round(d.BBox.X2)), int(math.Round(d.BBox.Y2)),
		).Canon()
		strokeRect(dst, rect, c)

		label := fmt.Sprintf("%s %.2f", d.ClassName, d.Confidence)
		textWidth := font.MeasureString(face, label).Ceil()
		height := face.Metrics().Height.Ceil()

		top := rect.Min.Y - height
		if top < 0 {
			top = rect.Min.Y
		}
		bg := image.Rect(rect.Min.X, top, rect.Min.X+textWidth+2*labelPadX, top+height)
		draw.Draw(dst, bg.Intersect(dst.Bounds()), &image.Uniform{C: c}, image.Point{}, draw.Src)

		drawer := &font.Drawer{
			Dst:  dst,
			Src:  image.White,
			Face: face,
			Dot:  fixed.P(bg.Min.X+labelPadX, bg.Min.Y+face.Metrics().Ascent.Ceil()),
		}
		drawer.DrawString(label)
	}

	return dst
}

func strokeRect(dst *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	src := &image.Uniform{C: c}
	bounds := dst.Bounds()
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+lineWidth),
		image.Rect(r.Min.X, r.Max.Y-lineWidth, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+lineWidth, r.Max.Y),
		image.Rect(r.Max.X-lineWidth, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(bounds), src, image.Point{}, draw.Src)
	}
}

func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// AnnotateJPEG draws detections on img and encodes the result.
func AnnotateJPEG(img image.Image, detections []models.Detection) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("no image to annotate")
	}
	return EncodeJPEG(Annotate(img, detections))
}
