package search

import "fmt"

func errMismatch(kind string, want, got int) error {
	return fmt.Errorf("search: %s packed vector has wrong length: want %d, got %d", kind, want, got)
}

func errIndexRange(control, attr string, ix, n int) error {
	return fmt.Errorf("search: discrete index %d for %s.%s out of range [0,%d)", ix, control, attr, n)
}
