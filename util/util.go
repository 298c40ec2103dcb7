package util

// RoundUp returns the smallest multiple of multiple that is greater than or
// equal to value. Values that are already aligned are returned unchanged.
func RoundUp(value, multiple int) int {
	return ((value + multiple - 1) / multiple) * multiple
}

// Aligned reports whether value is a multiple of multiple.
func Aligned(value, multiple int) bool {
	return value%multiple == 0
}
