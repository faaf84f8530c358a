package bloom

import "unsafe"

// ptrAddr extracts the raw address of a pointer for hashing purposes only;
// the returned value is never dereferenced.
func ptrAddr[K any](key *K) unsafe.Pointer {
	return unsafe.Pointer(key)
}

// alignShift returns the number of low bits of a *K address that are always
// zero due to alignment, so bit() doesn't waste entropy hashing bits that
// never vary. Mirrors the source's calc_shift, generalized to Go's
// unsafe.Alignof instead of a compile-time match on known widths.
func alignShift[K any]() uint {
	var zero K
	align := unsafe.Alignof(zero)
	shift := uint(0)
	for a := uintptr(1); a < align; a <<= 1 {
		shift++
	}
	return shift
}
