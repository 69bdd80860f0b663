//go:build linux

package wakeup

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

func init() {
	binary.NativeEndian.PutUint64(eventfdToken, 1)
}

func newEventfd() (*Bell, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	return &Bell{rfd: fd, wfd: fd, kind: "eventfd"}, nil
}
