package port

import "errors"

var (
	// ErrCancelled reports that the job's cancellation flag was observed.
	ErrCancelled = errors.New("job cancelled")
	// ErrFormatUnavailable reports that the requested variant cannot be served by the source.
	ErrFormatUnavailable = errors.New("requested format is not available")
	// ErrQuotaExceeded reports that the owner used up the daily allowance.
	ErrQuotaExceeded = errors.New("daily request limit exceeded")
	// ErrRunnerUnavailable reports that an execution path could not accept work.
	ErrRunnerUnavailable = errors.New("execution path unavailable")
)
