package update

import (
	"errors"
	"fmt"
)

// Errors returned by the update manager. Every error a Manager method
// returns wraps exactly one of these, so callers can branch with errors.Is.
var (
	// ErrConfiguration reports an invalid feed endpoint or installation.
	ErrConfiguration = errors.New("configuration error")
	// ErrFeedUnreachable reports a transport failure, timeout or non-200
	// response while talking to the feed.
	ErrFeedUnreachable = errors.New("feed unreachable")
	// ErrFeedFormat reports a feed response that could not be understood.
	ErrFeedFormat = errors.New("malformed feed")
	// ErrPrecondition reports an operation invoked out of order.
	ErrPrecondition = errors.New("precondition failed")
	// ErrBusy reports an operation rejected because another one is running.
	ErrBusy = fmt.Errorf("%w: another update operation is in progress", ErrPrecondition)
	// ErrDownloadIncomplete reports a truncated or corrupted download.
	ErrDownloadIncomplete = errors.New("download incomplete")
	// ErrApplyFailed reports a staged package that could not be applied.
	// The previous installation is still active.
	ErrApplyFailed = errors.New("apply failed")
	// ErrApplyFatal reports a failure after the new version was activated
	// that could not be rolled back.
	ErrApplyFatal = fmt.Errorf("%w: installation could not be restored", ErrApplyFailed)
)
