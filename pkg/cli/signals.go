package cli

import (
	"context"
	"os"

	"golang.org/x/sys/unix"

	"mercator-hq/dispatch/pkg/signals"
)

// InterruptContext returns a context that is cancelled on SIGINT. The
// handler is installed through router; stop restores the previous
// disposition and releases the context. While a main loop has the router
// armed, SIGINT ends that loop instead and this handler is reinstalled
// when the loop returns.
func InterruptContext(router *signals.Router) (ctx context.Context, stop func(), err error) {
	ctx, cancel := context.WithCancel(context.Background())

	prev, err := router.Trap(unix.SIGINT, signals.Handler(func(os.Signal) {
		cancel()
	}))
	if err != nil {
		cancel()
		return nil, nil, err
	}

	stop = func() {
		_, _ = router.Trap(unix.SIGINT, prev)
		cancel()
	}
	return ctx, stop, nil
}
