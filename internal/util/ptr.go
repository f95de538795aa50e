package util

func StringPtr(v string) *string { return &v }

func FloatPtr(v float64) *float64 { return &v }

// Deref returns the pointed-to value or the zero value.
func Deref[T any](v *T) T {
	if v == nil {
		var zero T
		return zero
	}
	return *v
}
