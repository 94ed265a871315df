package vectorstore

import "math"

// Cosine returns dot(a,b) / (|a| |b|) clamped to [-1, 1]. It returns 0 when
// either vector has zero norm or the lengths differ, never NaN.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	s := dot / (math.Sqrt(na) * math.Sqrt(nb))
	switch {
	case math.IsNaN(s):
		return 0
	case s > 1:
		return 1
	case s < -1:
		return -1
	}
	return s
}
