package funnel

import "strings"

// ValidatePhone reports whether the input contains at least 7 digits.
func ValidatePhone(phone string) bool {
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 7
}

// NormalizePhone brings a phone number to international format where
// possible. Bare 7-digit and 9-digit local numbers get the +998 prefix,
// long numbers without a plus get one prepended, everything else is
// stripped to digits and plus signs.
func NormalizePhone(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 7 || digits.Len() == 9 {
		return "+998" + digits.String()
	}

	var cleaned strings.Builder
	for _, r := range phone {
		if (r >= '0' && r <= '9') || r == '+' {
			cleaned.WriteRune(r)
		}
	}
	result := cleaned.String()
	if !strings.HasPrefix(result, "+") && len(result) > 10 {
		return "+" + result
	}
	return result
}
