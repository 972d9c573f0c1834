package engine

import (
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/disintegration/imaging"
)

const (
	DefaultMaxDetections = 300
	letterboxFill        = 114
)

// AnchorCount is the number of YOLOv8 prediction cells for a square input.
func AnchorCount(size int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		g := size / stride
		n += g * g
	}
	return n
}

// Letterbox scales img to fit a size x size canvas, keeping the aspect
// ratio, and pads the remainder with grey. The image is anchored at the
// top-left corner so mapping back only needs the scale.
func Letterbox(img image.Image, size int) (*image.NRGBA, float64) {
	b := img.Bounds()
	scale := math.Min(float64(size)/float64(b.Dx()), float64(size)/float64(b.Dy()))
	w := max(1, int(math.Round(float64(b.Dx())*scale)))
	h := max(1, int(math.Round(float64(b.Dy())*scale)))

	resized := imaging.Resize(img, w, h, imaging.Linear)
	canvas := imaging.New(size, size, color.NRGBA{R: letterboxFill, G: letterboxFill, B: letterboxFill, A: 255})
	return imaging.Paste(canvas, resized, image.Pt(0, 0)), scale
}

// FillTensor writes img as planar RGB scaled to [0,1].
func FillTensor(dst []float32, img *image.NRGBA, size int) {
	area := size * size
	for y := 0; y < size; y++ {
		row := img.Pix[y*img.Stride:]
		offset := y * size
		for x := 0; x < size; x++ {
			p := row[x*4:]
			i := offset + x
			dst[i] = float32(p[0]) / 255.0
			dst[area+i] = float32(p[1]) / 255.0
			dst[area*2+i] = float32(p[2]) / 255.0
		}
	}
}

type DecodeOptions struct {
	NumClasses    int
	Anchors       int
	Confidence    float32
	IoU           float32
	MaxDetections int
	// Scale is the letterbox scale; Width and Height bound the output.
	Scale  float64
	Width  int
	Height int
}

// Decode turns a [1, 4+classes, anchors] YOLOv8 output into boxes sorted
// by confidence, after per-class non-maximum suppression.
func Decode(output []float32, opts DecodeOptions) []Box {
	a := opts.Anchors
	at := func(row, col int) float32 { return output[row*a+col] }

	var candidates []Box
	for col := 0; col < a; col++ {
		best, bestScore := -1, float32(0)
		for c := 0; c < opts.NumClasses; c++ {
			if s := at(4+c, col); best < 0 || s > bestScore {
				best, bestScore = c, s
			}
		}
		if best < 0 || bestScore < opts.Confidence {
			continue
		}

		cx, cy, w, h := at(0, col), at(1, col), at(2, col), at(3, col)
		scale := float32(opts.Scale)
		candidates = append(candidates, Box{
			ClassID:    float32(best),
			Confidence: bestScore,
			XYXY: [4]float32{
				clamp((cx-w/2)/scale, float32(opts.Width)),
				clamp((cy-h/2)/scale, float32(opts.Height)),
				clamp((cx+w/2)/scale, float32(opts.Width)),
				clamp((cy+h/2)/scale, float32(opts.Height)),
			},
		})
	}

	limit := opts.MaxDetections
	if limit <= 0 {
		limit = DefaultMaxDetections
	}
	return NMS(candidates, opts.IoU, limit)
}

// NMS keeps the highest scoring box among same-class boxes overlapping
// by more than iou.
func NMS(boxes []Box, iou float32, limit int) []Box {
	sort.SliceStable(boxes, func(i, j int) bool {
		return boxes[i].Confidence > boxes[j].Confidence
	})

	kept := make([]Box, 0, min(len(boxes), limit))
	suppressed := make([]bool, len(boxes))
	for i := range boxes {
		if suppressed[i] {
			continue
		}
		kept = append(kept, boxes[i])
		if len(kept) == limit {
			break
		}
		for j := i + 1; j < len(boxes); j++ {
			if !suppressed[j] && boxes[j].ClassID == boxes[i].ClassID && IoU(boxes[i].XYXY, boxes[j].XYXY) > iou {
				suppressed[j] = true
			}
		}
	}
	return kept
}

func IoU(a, b [4]float32) float32 {
	ix1, iy1 := max(a[0], b[0]), max(a[1], b[1])
	ix2, iy2 := min(a[2], b[2]), min(a[3], b[3])
	iw, ih := ix2-ix1, iy2-iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clamp(v, hi float32) float32 {
	return min(max(v, 0), hi)
}
