package collector

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/csilogger/pbcollect/internal/config"
	"github.com/csilogger/pbcollect/internal/pakbus/transport"
	"github.com/csilogger/pbcollect/internal/perr"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// errShutdownRequested marks a clean exit triggered by SIGINT/SIGTERM
// rather than a session failure; Run reports it to the caller as nil.
var errShutdownRequested = errors.New("collector: shutdown requested")

// Run opens the serial device once and drives the retry loop around
// runSession, escalating the inter-byte read timeout on each
// retryable failure per transport.RetryBackoff. It owns the
// transport's entire lifetime: a single *transport.Transport is
// reused across every attempt (SetTimeout re-opens the OS port in
// place but keeps the Transport's identity) and is closed exactly
// once before Run returns.
//
// A signal-listener goroutine races the retry loop inside an
// errgroup, grounded on solidcoredata-dca's Start/RunAll helpers: a
// signal or a failed retry loop cancels the shared context, the retry
// loop ending for any reason stops the listener, and the retry loop
// only observes cancellation between attempts, never in the middle of
// a session already underway.
func Run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	tr, err := transport.Open(transport.Config{
		Device:      cfg.Connection.PortName,
		BaudRate:    cfg.Connection.BaudRate,
		VTimeTenths: cfg.Connection.VTime,
	})
	if err != nil {
		return perr.IoErr{Cause: err}
	}
	defer tr.Close()

	group, gctx := errgroup.WithContext(ctx)
	sigCtx, stopSignals := context.WithCancel(gctx)
	defer stopSignals()
	group.Go(func() error { return watchSignals(sigCtx) })
	group.Go(func() error {
		defer stopSignals()
		return retryLoop(gctx, tr, cfg, log, runSession)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, errShutdownRequested) {
		return err
	}
	return nil
}

// watchSignals blocks until ctx is done or a SIGINT/SIGTERM arrives,
// in which case it returns errShutdownRequested so the errgroup
// cancels gctx and the retry loop unwinds at its next boundary check.
func watchSignals(ctx context.Context) error {
	notify := make(chan os.Signal, 2)
	signal.Notify(notify, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(notify)

	select {
	case <-notify:
		return errShutdownRequested
	case <-ctx.Done():
		return nil
	}
}

// sessionFunc is runSession's signature, abstracted so retryLoop's
// escalation and error-kind dispatch can be tested without a real
// serial device or PakBus peer.
type sessionFunc func(tr *transport.Transport, cfg *config.Config, log zerolog.Logger) error

// retryLoop runs run (runSession in production) until it succeeds, a
// fatal perr.IoErr occurs, the retry budget is exhausted, or ctx is
// canceled between attempts.
func retryLoop(ctx context.Context, tr *transport.Transport, cfg *config.Config, log zerolog.Logger, run sessionFunc) error {
	backoff := transport.NewRetryBackoff(tr)

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := run(tr, cfg, log)
		if err == nil {
			backoff.Reset()
			return nil
		}

		var ioErr perr.IoErr
		if errors.As(err, &ioErr) {
			log.Error().Err(err).Msg("collector: fatal i/o error, giving up")
			return err
		}

		log.Warn().Err(err).Int("attempt", attempt).Msg("collector: session failed, escalating timeout and retrying")

		if ctx.Err() != nil {
			return ctx.Err()
		}

		more, backoffErr := backoff.Next()
		if backoffErr != nil {
			return perr.IoErr{Cause: backoffErr}
		}
		if !more {
			log.Error().Msg("collector: retry budget exhausted, giving up")
			return err
		}
	}
}
