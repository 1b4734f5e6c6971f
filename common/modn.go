// Package common - Small primitives shared across the tracking packages.
package common

// Modn returns a modulo n, always in [0, n) for positive n, including when a is
// negative. Go's % keeps the sign of the dividend, so Modn(-1, 50) is 49 where
// -1 % 50 is -1.
//
// Arguments:
//   - a: The value to reduce.
//   - n: The modulus, must be > 0.
//
// Returns:
//   - int: a reduced into [0, n).
func Modn(a, n int) int {
	return (n + a%n) % n
}
