package recognizer

import (
	"image"
	"strings"
	"unicode"

	"github.com/MeKo-Tech/litelens/internal/vision"
	"golang.org/x/text/unicode/norm"
)

// SelectCenterBlock returns the index of the block whose center is closest to
// the center of a w x h image by Manhattan distance. Ties keep the earliest
// block. It returns -1 for an empty slice.
func SelectCenterBlock(blocks []vision.TextBlock, w, h int) int {
	cx, cy := w/2, h/2
	best, bestDist := -1, 0
	for i, b := range blocks {
		c := center(b.Box)
		d := abs(c.X-cx) + abs(c.Y-cy)
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// CleanText composes the text to NFC, drops zero-width and control
// characters, and collapses whitespace runs, joining multi-line blocks into
// one line.
func CleanText(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\u200B' || r == '\u200C' || r == '\u200D' || r == '\uFEFF':
			return -1
		case unicode.IsSpace(r):
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, norm.NFC.String(s))
	return strings.Join(strings.Fields(s), " ")
}

func center(r image.Rectangle) image.Point {
	return image.Pt((r.Min.X+r.Max.X)/2, (r.Min.Y+r.Max.Y)/2)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
