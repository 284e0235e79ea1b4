package observe

import (
	"context"

	"github.com/rs/zerolog"
)

// LogObserver emits structured log events for decorator lifecycle callbacks.
// Attempts and flushes log at debug level; a failed call logs at warn.
type LogObserver struct {
	logger zerolog.Logger
}

// NewLogObserver returns a LogObserver writing to logger.
func NewLogObserver(logger zerolog.Logger) LogObserver {
	return LogObserver{logger: logger}
}

func (l LogObserver) OnAttempt(ctx context.Context, rec AttemptRecord) {
	l.logger.Debug().
		Str("invocation", rec.InvocationID).
		Int("attempt", rec.Attempt).
		Dur("elapsed", rec.End.Sub(rec.Start)).
		Dur("backoff", rec.Backoff).
		Bool("retryable", rec.Retryable).
		Err(rec.Err).
		Msg("call attempt")
}

func (l LogObserver) OnCall(ctx context.Context, rec CallRecord) {
	ev := l.logger.Debug()
	if rec.Err != nil {
		ev = l.logger.Warn()
	}
	ev.
		Str("invocation", rec.InvocationID).
		Int("attempts", rec.Attempts).
		Dur("elapsed", rec.End.Sub(rec.Start)).
		Err(rec.Err).
		Msg("call finished")
}

func (l LogObserver) OnBundleFlush(ctx context.Context, rec FlushRecord) {
	l.logger.Debug().
		Str("bundle", rec.BundleID).
		Str("key", rec.Key).
		Int("members", rec.Members).
		Int("bytes", rec.Bytes).
		Str("trigger", rec.Trigger).
		Err(rec.Err).
		Msg("bundle flushed")
}
