package ticket

// ChecksumFunc computes the check digit for a string of decimal digits.
type ChecksumFunc func(digits string) int

// Luhn returns the mod-10 check digit that makes digits+check pass the Luhn test.
func Luhn(digits string) int {
	sum := 0
	double := true // the check digit will take the rightmost position
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return (10 - sum%10) % 10
}
