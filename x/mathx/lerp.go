package mathx

// Lerp returns linear interpolation between a and b with t in [0..1].
// t outside the range is clamped.
func Lerp(a, b, t float64) float64 {
	if t <= 0 {
		return a
	}
	if t >= 1 {
		return b
	}
	return a + (b-a)*t
}

// MapRange maps x in [inMin,inMax] to [outMin,outMax], clamping to the
// output range when x is outside the input range.
func MapRange(x, inMin, inMax, outMin, outMax float64) float64 {
	if inMax == inMin {
		return outMin
	}
	if x <= inMin {
		return outMin
	}
	if x >= inMax {
		return outMax
	}
	return outMin + (x-inMin)*(outMax-outMin)/(inMax-inMin)
}
