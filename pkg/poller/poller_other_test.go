//go:build unix && !linux

package poller

func platformBackends() []backend { return nil }
