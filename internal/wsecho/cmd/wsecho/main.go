package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"cdr.dev/slog"
	"cdr.dev/slog/sloggers/sloghuman"
	"golang.org/x/time/rate"

	"nhooyr.io/wsengine"
	"nhooyr.io/wsengine/internal/wsecho"
	"nhooyr.io/wsengine/wshttp"
)

func main() {
	addr := flag.String("addr", "localhost:0", "address to listen on")
	rps := flag.Float64("rate", 0, "maximum echoed messages per second, 0 for unlimited")
	flag.Parse()

	log := slog.Make(sloghuman.Sink(os.Stderr)).Leveled(slog.LevelDebug)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	err := run(ctx, log, *addr, *rps)
	if err != nil {
		log.Fatal(ctx, "echo server failed", slog.Error(err))
	}
}

func run(ctx context.Context, log slog.Logger, addr string, rps float64) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := wshttp.Upgrade(w, r, &wshttp.Options{
				Options: wsengine.Options{
					Logger: log,
				},
				InsecureSkipVerify: true,
			})
			if err != nil {
				log.Warn(r.Context(), "failed to upgrade", slog.Error(err))
				return
			}

			var l *rate.Limiter
			if rps > 0 {
				l = rate.NewLimiter(rate.Limit(rps), 1)
			}
			err = wsecho.Loop(r.Context(), c, l)
			if err != nil {
				log.Info(r.Context(), "echo loop ended", slog.Error(err))
			}
		}),
		ReadHeaderTimeout: time.Second * 10,
	}
	closeFn := wshttp.Grace(s, time.Second*30)

	errs := make(chan error, 1)
	go func() {
		errs <- s.Serve(ln)
	}()
	log.Info(ctx, "serving echo", slog.F("url", "ws://"+ln.Addr().String()))

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	err = closeFn()
	if err != nil {
		return err
	}
	err = <-errs
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
