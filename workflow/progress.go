package workflow

import "math"

// Progress returns overall completion in 0..100. Each stage contributes up to
// 25 points; signing contributes proportionally to signed/total. Rounding
// happens once on the sum, so partial signing progress is visible.
func Progress(committed bool, signed, total int, identityVerified, transferred bool) int {
	var points float64
	if committed {
		points += 25
	}
	if total > 0 {
		if signed > total {
			signed = total
		}
		points += 25 * float64(signed) / float64(total)
	}
	if identityVerified {
		points += 25
	}
	if transferred {
		points += 25
	}
	return int(math.Round(points))
}
