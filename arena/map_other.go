//go:build !(linux || darwin || freebsd)

package arena

import "github.com/cockroachdb/errors"

// Map creates an arena over length bytes of heap memory on platforms without anonymous mappings.
// Release drops the arena's reference to it.
func Map(length int) (*Arena, error) {
	if length <= 0 {
		return nil, errors.Wrapf(ErrRegionTooSmall, "cannot map %d bytes", length)
	}

	a, err := New(make([]byte, length))
	if err != nil {
		return nil, err
	}

	a.release = func([]byte) error { return nil }
	return a, nil
}
