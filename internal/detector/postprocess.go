package detector

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/MeKo-Tech/litelens/internal/vision"
)

// rawOutput holds the three SSD heads for a single image.
type rawOutput struct {
	Boxes   []float32 // N*4, normalized [ymin, xmin, ymax, xmax]
	Scores  []float32 // N
	Classes []float32 // N
}

// decode turns raw heads into objects in a w x h pixel space, keeping scores
// of at least threshold, highest first, at most maxResults (0 = all).
func decode(out rawOutput, w, h int, threshold float64, labels Labels, labelOffset, maxResults int) ([]vision.RawObject, error) {
	n := len(out.Scores)
	if len(out.Boxes) < n*4 || len(out.Classes) < n {
		return nil, fmt.Errorf("inconsistent detector outputs: %d boxes, %d scores, %d classes",
			len(out.Boxes)/4, n, len(out.Classes))
	}

	objs := make([]vision.RawObject, 0, n)
	for i := range n {
		score := float64(out.Scores[i])
		if math.IsNaN(score) || score < threshold {
			continue
		}
		b := out.Boxes[i*4 : i*4+4]
		rect := image.Rect(
			scale(b[1], w), scale(b[0], h),
			scale(b[3], w), scale(b[2], h),
		).Intersect(image.Rect(0, 0, w, h))
		if rect.Empty() {
			continue
		}
		objs = append(objs, vision.RawObject{
			Box:        rect,
			Label:      labels.Name(int(out.Classes[i]) + labelOffset),
			Confidence: score,
		})
	}

	sort.SliceStable(objs, func(i, j int) bool { return objs[i].Confidence > objs[j].Confidence })
	if maxResults > 0 && len(objs) > maxResults {
		objs = objs[:maxResults]
	}
	return objs, nil
}

func scale(v float32, dim int) int {
	return int(math.Round(float64(v) * float64(dim)))
}
