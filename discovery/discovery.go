// Package discovery finds the serial port a device is attached to by probing
// candidate ports one at a time with a known request/response pair.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-tempsim/frame"
	"github.com/arloliu/go-tempsim/internal/pool"
	"github.com/arloliu/go-tempsim/logger"
	"github.com/arloliu/go-tempsim/transport"
)

// ErrNotFound is returned when no candidate port answered the probe.
var ErrNotFound = errors.New("discovery: device not found")

// Matcher validates the probe reply. *frame.Pattern implements it.
type Matcher interface {
	Match(received []byte) (*frame.Match, bool)
}

// Probe is the liveness check sent to each candidate.
type Probe struct {
	Request  []byte
	Response Matcher
}

// Status is the outcome of probing one port.
type Status uint8

const (
	StatusMatched Status = iota
	StatusOpenFailed
	StatusSendFailed
	StatusNoMatch
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusMatched:
		return "matched"
	case StatusOpenFailed:
		return "open failed"
	case StatusSendFailed:
		return "send failed"
	case StatusNoMatch:
		return "no match"
	case StatusCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// PortReport records what happened on one candidate.
type PortReport struct {
	Port     string
	Status   Status
	Err      error
	Received []byte
	Elapsed  time.Duration
}

// Result is the outcome of a discovery run.
type Result struct {
	// Port is the bound port. It is left open for the caller.
	Port string
	// Match is the probe reply received on Port.
	Match *frame.Match
	// Reports lists every candidate probed, in order.
	Reports []PortReport
}

// Discover probes candidates in order and returns the first port whose reply
// matches probe.Response. Every other port it opened is closed again, so at most
// one candidate is open at any time. An empty candidate list probes every port
// reported by tr.Ports.
//
// When nothing matches the error wraps ErrNotFound and all probed ports are closed.
func Discover(ctx context.Context, tr transport.Transport, candidates []string, probe Probe, opts ...Option) (Result, error) {
	var res Result

	if len(probe.Request) == 0 || probe.Response == nil {
		return res, errors.New("discovery: probe needs a request and a response matcher")
	}

	cfg, err := newConfig(opts...)
	if err != nil {
		return res, err
	}
	l := cfg.logger.With("component", "discovery")

	if len(candidates) == 0 {
		candidates, err = tr.Ports()
		if err != nil {
			return res, fmt.Errorf("discovery: enumerate ports: %w", err)
		}
	}
	l.Debug("discovery started", "candidates", len(candidates), "mode", cfg.mode.String())

	for _, port := range candidates {
		report, m := probePort(ctx, tr, port, probe, cfg, l)
		res.Reports = append(res.Reports, report)

		if report.Status == StatusMatched {
			res.Port = port
			res.Match = m
			l.Info("device found", "port", port)

			return res, nil
		}

		if report.Status == StatusCanceled {
			return res, ctx.Err()
		}
	}

	l.Info("device not found", "candidates", len(candidates))

	return res, fmt.Errorf("%w: %d ports probed", ErrNotFound, len(candidates))
}

func probePort(ctx context.Context, tr transport.Transport, port string, probe Probe, cfg *config, l logger.Logger) (PortReport, *frame.Match) {
	begin := time.Now()
	report := PortReport{Port: port}
	done := func(s Status, err error) (PortReport, *frame.Match) {
		report.Status = s
		report.Err = err
		report.Elapsed = time.Since(begin)
		if s != StatusMatched {
			if cerr := tr.Close(port); cerr != nil {
				l.Debug("close failed", "port", port, "error", cerr)
			}
			l.Debug("port skipped", "port", port, "status", s.String(), "error", err)
		}

		return report, nil
	}

	if err := ctx.Err(); err != nil {
		return done(StatusCanceled, err)
	}

	if err := openWithin(ctx, tr, port, cfg.mode, cfg.perPortTimeout); err != nil {
		if ctx.Err() != nil {
			return done(StatusCanceled, err)
		}

		return done(StatusOpenFailed, err)
	}

	if err := tr.Flush(port); err != nil {
		l.Debug("flush failed", "port", port, "error", err)
	}

	if err := tr.Send(port, probe.Request); err != nil {
		return done(StatusSendFailed, err)
	}

	deadline := time.Now().Add(cfg.window())
	for {
		data, err := tr.Receive(port)
		report.Received = append(report.Received, data...)
		if err != nil {
			return done(StatusNoMatch, err)
		}

		if m, ok := probe.Response.Match(report.Received); ok {
			report.Status = StatusMatched
			report.Elapsed = time.Since(begin)

			return report, m
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return done(StatusNoMatch, nil)
		}

		if err := pool.Sleep(ctx, min(cfg.pollInterval, remaining)); err != nil {
			return done(StatusCanceled, err)
		}
	}
}

// openWithin opens port, giving up after timeout. A port whose open completes
// after the timeout is closed as soon as the open returns.
func openWithin(ctx context.Context, tr transport.Transport, port string, mode transport.Mode, timeout time.Duration) error {
	result := make(chan error, 1)
	go func() { result <- tr.Open(port, mode) }()

	t := pool.GetTimer(timeout)
	defer pool.PutTimer(t)

	select {
	case err := <-result:
		return err
	case <-t.C:
	case <-ctx.Done():
	}

	go func() {
		if err := <-result; err == nil {
			_ = tr.Close(port)
		}
	}()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	return transport.NewOpError("open", port, fmt.Errorf("timed out after %v", timeout))
}

// CloseAll closes ports, or every port reported by tr.Ports when ports is empty.
func CloseAll(tr transport.Transport, ports ...string) error {
	if len(ports) == 0 {
		var err error
		if ports, err = tr.Ports(); err != nil {
			return err
		}
	}

	var errs []error
	for _, p := range ports {
		if err := tr.Close(p); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
