//go:build linux

package fcram

import "golang.org/x/sys/unix"

func mapArena(size int, name string) (*Arena, error) {
	if name == "" {
		name = "hle-fcram"
	}
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, err
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &Arena{data: data, memFd: fd, mapped: true}, nil
}

func (a *Arena) unmap() error {
	if !a.mapped {
		a.data = nil
		return nil
	}
	data := a.data
	a.data = nil
	a.mapped = false
	if err := unix.Munmap(data); err != nil {
		unix.Close(a.memFd)
		return err
	}
	return unix.Close(a.memFd)
}
