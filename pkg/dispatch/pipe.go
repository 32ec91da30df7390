package dispatch

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// gracefulPipe is the per-run termination pipe. Closing the write end makes
// the read end report EOF to the main loop.
type gracefulPipe struct {
	mu      sync.Mutex
	r, w    int
	rClosed bool
	wClosed bool
}

func newGracefulPipe() (*gracefulPipe, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("create graceful termination pipe: %w", err)
	}
	return &gracefulPipe{r: fds[0], w: fds[1]}, nil
}

// closeWriter closes the write end. Safe to call repeatedly.
func (p *gracefulPipe) closeWriter() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.wClosed {
		return
	}
	p.wClosed = true
	_ = unix.Close(p.w)
}

// closeReader closes the read end. It must not be called while the main
// loop is polling it.
func (p *gracefulPipe) closeReader() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rClosed {
		return
	}
	p.rClosed = true
	_ = unix.Close(p.r)
}

// waitReadable blocks until ownerFD or gracefulFD becomes readable, reaches
// EOF or reports an error condition.
func waitReadable(ownerFD, gracefulFD int) (ExitReason, error) {
	fds := []unix.PollFd{
		{Fd: int32(ownerFD), Events: unix.POLLIN},
		{Fd: int32(gracefulFD), Events: unix.POLLIN},
	}
	for {
		_, err := unix.Poll(fds, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return ExitNone, fmt.Errorf("poll termination pipes: %w", err)
		}
		switch {
		case fds[0].Revents != 0:
			return ExitOwnerPipeClosed, nil
		case fds[1].Revents != 0:
			return ExitGracefulPipeClosed, nil
		}
	}
}
