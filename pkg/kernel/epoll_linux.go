//go:build linux

package kernel

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// epollPoller is the production Poller, a thin wrapper over
// golang.org/x/sys/unix's epoll_create1/epoll_ctl/epoll_wait — the Go
// binding for exactly the <sys/epoll.h> calls dmm_sockevent.c makes.
type epollPoller struct {
	fd int
}

// NewEpollPoller creates an epoll instance, matching dmm_initialize's
// epoll_create1(0) call.
func NewEpollPoller() (Poller, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &epollPoller{fd: fd}, nil
}

func toEpollEvents(m SockEventMask) uint32 {
	var ev uint32
	if m&SockEventIn != 0 {
		ev |= unix.EPOLLIN
	}
	if m&SockEventOut != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func fromEpollEvents(ev uint32) SockEventMask {
	var m SockEventMask
	if ev&unix.EPOLLIN != 0 {
		m |= SockEventIn
	}
	if ev&unix.EPOLLOUT != 0 {
		m |= SockEventOut
	}
	if ev&^(unix.EPOLLIN|unix.EPOLLOUT) != 0 {
		m |= SockEventErr
	}
	return m
}

func (p *epollPoller) Add(fd int, events SockEventMask) error {
	ev := unix.EpollEvent{Events: toEpollEvents(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl add fd %d: %w", fd, err)
	}
	return nil
}

func (p *epollPoller) Modify(fd int, events SockEventMask) error {
	ev := unix.EpollEvent{Events: toEpollEvents(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl mod fd %d: %w", fd, err)
	}
	return nil
}

func (p *epollPoller) Remove(fd int) error {
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll_ctl del fd %d: %w", fd, err)
	}
	return nil
}

// Wait mirrors the original main loop's single-event epoll_wait call
// (maxevents=1, see SPEC_FULL.md Open Question 4): at most one ready
// descriptor is returned per call, preserving the one-wave-per-stimulus
// invariant.
func (p *epollPoller) Wait(timeout time.Duration) ([]ReadyFD, error) {
	var events [1]unix.EpollEvent
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	n, err := unix.EpollWait(p.fd, events[:], ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, ErrInterrupted
		}
		return nil, fmt.Errorf("epoll_wait: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return []ReadyFD{{FD: int(events[0].Fd), Events: fromEpollEvents(events[0].Events)}}, nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.fd)
}
