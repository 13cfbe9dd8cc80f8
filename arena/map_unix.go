//go:build linux || darwin || freebsd

package arena

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// Map creates an arena over a fresh anonymous private mapping of length bytes. The mapping is
// page aligned. Release unmaps it.
func Map(length int) (*Arena, error) {
	if length <= 0 {
		return nil, errors.Wrapf(ErrRegionTooSmall, "cannot map %d bytes", length)
	}

	data, err := unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrapf(err, "mapping %d bytes", length)
	}

	a, err := New(data)
	if err != nil {
		_ = unix.Munmap(data)
		return nil, err
	}

	a.release = unix.Munmap
	return a, nil
}
