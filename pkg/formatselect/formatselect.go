// Package formatselect implements the ranked best-match format selection
// algorithm (spec.md §4.D): given a target resolution, pick the best
// available VideoFormat by a fixed sequence of tiers, each one a total
// order over the candidates still in play.
package formatselect

import "github.com/usbcapd/usbcapd/pkg/videoconn"

// Target is the requested resolution to match against.
type Target struct {
	Width, Height int
}

func (t Target) area() int {
	return t.Width * t.Height
}

func (t Target) aspectRatio() (int, int) {
	g := gcd(t.Width, t.Height)
	if g == 0 {
		return 0, 0
	}
	return t.Width / g, t.Height / g
}

func (t Target) aspectRatioFloat() float64 {
	if t.Height == 0 {
		return 0
	}
	return float64(t.Width) / float64(t.Height)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Select picks the best format in formats for target, trying each tier in
// order and stopping at the first non-empty one. Ties within a tier are
// broken by first-found order (formats is walked in its given order, and
// every comparison is a strict "better than", never "equal or better than",
// so an earlier tie-breaking winner is never displaced by a later equal
// candidate). Returns false if formats is empty.
func Select(formats []videoconn.VideoFormat, target Target) (videoconn.VideoFormat, bool) {
	if len(formats) == 0 {
		return videoconn.VideoFormat{}, false
	}

	// Tier 1: exact (w, h) at 60 fps.
	for _, f := range formats {
		if f.Width == target.Width && f.Height == target.Height && f.FPS == 60 {
			return f, true
		}
	}

	// Tier 2: exact (w, h) at any fps — first found wins.
	for _, f := range formats {
		if f.Width == target.Width && f.Height == target.Height {
			return f, true
		}
	}

	// Tier 3: same reduced aspect ratio — smallest with area >= target's,
	// else the largest available.
	tw, th := target.aspectRatio()
	var sameAspect []videoconn.VideoFormat
	for _, f := range formats {
		fw, fh := f.AspectRatio()
		if fw == tw && fh == th {
			sameAspect = append(sameAspect, f)
		}
	}
	if len(sameAspect) > 0 {
		if best, ok := smallestAtLeast(sameAspect, target.area()); ok {
			return best, true
		}
		return largest(sameAspect), true
	}

	// Tier 4: closest float aspect ratio among formats at least as large as
	// target in one dimension — minimum ratio above target, else maximum
	// ratio at or below target.
	targetRatio := target.aspectRatioFloat()
	var candidates []videoconn.VideoFormat
	for _, f := range formats {
		if f.Width >= target.Width || f.Height >= target.Height {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) > 0 {
		if best, ok := minRatioAbove(candidates, targetRatio); ok {
			return best, true
		}
		if best, ok := maxRatioAtMost(candidates, targetRatio); ok {
			return best, true
		}
	}

	// Tier 5: closest area — largest <= target, else smallest > target.
	if best, ok := largestAtMost(formats, target.area()); ok {
		return best, true
	}
	return smallestAbove(formats, target.area()), true
}

func smallestAtLeast(fs []videoconn.VideoFormat, minArea int) (videoconn.VideoFormat, bool) {
	var best videoconn.VideoFormat
	found := false
	for _, f := range fs {
		if f.Area() >= minArea && (!found || f.Area() < best.Area()) {
			best, found = f, true
		}
	}
	return best, found
}

func largest(fs []videoconn.VideoFormat) videoconn.VideoFormat {
	best := fs[0]
	for _, f := range fs[1:] {
		if f.Area() > best.Area() {
			best = f
		}
	}
	return best
}

func ratio(f videoconn.VideoFormat) float64 {
	if f.Height == 0 {
		return 0
	}
	return float64(f.Width) / float64(f.Height)
}

func minRatioAbove(fs []videoconn.VideoFormat, target float64) (videoconn.VideoFormat, bool) {
	var best videoconn.VideoFormat
	found := false
	for _, f := range fs {
		r := ratio(f)
		if r > target && (!found || r < ratio(best)) {
			best, found = f, true
		}
	}
	return best, found
}

func maxRatioAtMost(fs []videoconn.VideoFormat, target float64) (videoconn.VideoFormat, bool) {
	var best videoconn.VideoFormat
	found := false
	for _, f := range fs {
		r := ratio(f)
		if r <= target && (!found || r > ratio(best)) {
			best, found = f, true
		}
	}
	return best, found
}

func largestAtMost(fs []videoconn.VideoFormat, maxArea int) (videoconn.VideoFormat, bool) {
	var best videoconn.VideoFormat
	found := false
	for _, f := range fs {
		if f.Area() <= maxArea && (!found || f.Area() > best.Area()) {
			best, found = f, true
		}
	}
	return best, found
}

func smallestAbove(fs []videoconn.VideoFormat, minArea int) videoconn.VideoFormat {
	best := fs[0]
	found := false
	for _, f := range fs {
		if f.Area() > minArea && (!found || f.Area() < best.Area()) {
			best, found = f, true
		}
	}
	if !found {
		return largest(fs)
	}
	return best
}
