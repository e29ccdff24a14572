package wshttp

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/xerrors"
)

// Grace wraps s.Handler to track handlers serving WebSocket upgrades.
// http.Server.Shutdown does not wait for hijacked connections so the
// returned function must be used to close s instead of s.Shutdown.
//
// The request context of a tracked handler is canceled once closeFn is
// called. closeFn waits up to timeout for every tracked handler to return.
func Grace(s *http.Server, timeout time.Duration) (closeFn func() error) {
	h := s.Handler
	if h == nil {
		h = http.DefaultServeMux
	}

	var active atomic.Int64
	closing, stop := context.WithCancel(context.Background())

	s.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsWebSocket(r) {
			h.ServeHTTP(w, r)
			return
		}

		active.Add(1)
		defer active.Add(-1)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go func() {
			select {
			case <-closing.Done():
				cancel()
			case <-ctx.Done():
			}
		}()

		h.ServeHTTP(w, r.WithContext(ctx))
	})

	return func() error {
		stop()

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		err := s.Shutdown(ctx)
		if err != nil {
			return xerrors.Errorf("server shutdown failed: %w", err)
		}

		t := time.NewTicker(time.Millisecond * 10)
		defer t.Stop()
		for {
			n := active.Load()
			if n == 0 {
				return nil
			}
			select {
			case <-t.C:
			case <-ctx.Done():
				return xerrors.Errorf("failed to wait for %v WebSocket handlers: %w", n, ctx.Err())
			}
		}
	}
}
