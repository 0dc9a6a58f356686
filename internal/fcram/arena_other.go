//go:build !linux

package fcram

import "errors"

var errNoMmap = errors.New("fcram: memory-mapped backing not supported on this platform")

func mapArena(size int, name string) (*Arena, error) {
	return nil, errNoMmap
}

func (a *Arena) unmap() error {
	a.data = nil
	return nil
}
