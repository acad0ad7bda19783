package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultRetries is how many times a failed transfer is retried.
	DefaultRetries = 3
	// DefaultRetryDelay is the initial delay between transfer attempts.
	DefaultRetryDelay = 500 * time.Millisecond

	partialSuffix = ".partial"
	progressStep  = 5
)

// downloader fetches packages from a Source into the staging directory.
type downloader struct {
	source       Source
	retries      int
	retryDelay   time.Duration
	stallTimeout time.Duration
	progress     func(int)
	log          *log.Entry
}

// download stores info's package at dst. The transfer goes to
// dst+".partial" and is renamed into place only after it verifies, so dst
// never holds a partial file. Transport failures are retried with backoff;
// integrity failures are not.
func (d *downloader) download(ctx context.Context, info *UpdateInfo, dst string) error {
	partial := dst + partialSuffix
	defer func() { _ = os.Remove(partial) }()

	report := newProgressReporter(d.progress)

	operation := func() error {
		err := d.fetchOnce(ctx, info, partial, report)
		if err == nil {
			return nil
		}
		if errors.Is(err, errIntegrity) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.retryDelay
	policy.MaxInterval = 10 * time.Second

	err := backoff.RetryNotify(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(d.retries)), ctx),
		func(err error, duration time.Duration) {
			d.log.Warnf("download failed, retrying in %v: %v", duration, err)
		},
	)
	if err != nil {
		if !errors.Is(err, ErrFeedUnreachable) && !errors.Is(err, ErrDownloadIncomplete) {
			err = fmt.Errorf("%w: %v", ErrFeedUnreachable, err)
		}
		return err
	}

	if err := os.Rename(partial, dst); err != nil {
		return fmt.Errorf("%w: failed to move package into place: %v", ErrDownloadIncomplete, err)
	}
	report.finish()
	return nil
}

func (d *downloader) fetchOnce(ctx context.Context, info *UpdateInfo, partial string, report *progressReporter) error {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stall *stallTimer
	if d.stallTimeout > 0 {
		stall = newStallTimer(d.stallTimeout, cancel)
		defer stall.stop()
	}

	body, size, err := d.source.Open(attemptCtx, info.FileName())
	if err != nil {
		if stall.fired() {
			return fmt.Errorf("%w: no response within %v", ErrFeedUnreachable, d.stallTimeout)
		}
		return err
	}
	defer func() { _ = body.Close() }()

	total := info.Size()
	if total <= 0 {
		total = size
	}
	report.start(total)

	out, err := os.OpenFile(partial, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("%w: failed to create %s: %v", ErrDownloadIncomplete, partial, err))
	}

	var r io.Reader = body
	if stall != nil {
		r = stall.reader(body)
	}

	_, copyErr := io.Copy(io.MultiWriter(out, report), r)
	if closeErr := out.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		if stall.fired() {
			return fmt.Errorf("%w: transfer stalled for %v", ErrDownloadIncomplete, d.stallTimeout)
		}
		return fmt.Errorf("%w: %v", ErrDownloadIncomplete, copyErr)
	}

	if err := verifyPackage(partial, info); err != nil {
		return fmt.Errorf("%w: %w", ErrDownloadIncomplete, err)
	}
	return nil
}

// progressReporter turns byte counts into percentages reported in
// progressStep increments. It never reports a lower value than before, so a
// retried transfer does not move progress backwards.
type progressReporter struct {
	fn      func(int)
	total   int64
	written int64
	last    int
}

func newProgressReporter(fn func(int)) *progressReporter {
	return &progressReporter{fn: fn, last: -1}
}

func (p *progressReporter) start(total int64) {
	p.total = total
	p.written = 0
	p.emit(0)
}

func (p *progressReporter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.total > 0 {
		pct := int(p.written * 100 / p.total)
		if pct > 100 {
			pct = 100
		}
		p.emit(pct - pct%progressStep)
	}
	return len(b), nil
}

func (p *progressReporter) finish() {
	p.emit(100)
}

func (p *progressReporter) emit(pct int) {
	if pct <= p.last {
		return
	}
	p.last = pct
	if p.fn != nil {
		p.fn(pct)
	}
}

// stallTimer cancels a transfer when no data arrives for a full period.
type stallTimer struct {
	d       time.Duration
	timer   *time.Timer
	expired atomic.Bool
}

func newStallTimer(d time.Duration, cancel context.CancelFunc) *stallTimer {
	s := &stallTimer{d: d}
	s.timer = time.AfterFunc(d, func() {
		s.expired.Store(true)
		cancel()
	})
	return s
}

// fired reports whether the timer cancelled the transfer. A nil timer never
// fires.
func (s *stallTimer) fired() bool {
	return s != nil && s.expired.Load()
}

func (s *stallTimer) stop() {
	s.timer.Stop()
}

func (s *stallTimer) reader(r io.Reader) io.Reader {
	return &stallReader{r: r, s: s}
}

type stallReader struct {
	r io.Reader
	s *stallTimer
}

func (sr *stallReader) Read(p []byte) (int, error) {
	n, err := sr.r.Read(p)
	if n > 0 {
		sr.s.timer.Reset(sr.s.d)
	}
	return n, err
}
