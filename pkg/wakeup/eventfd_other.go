//go:build unix && !linux

package wakeup

import "errors"

func newEventfd() (*Bell, error) {
	return nil, errors.New("eventfd: unsupported platform")
}
