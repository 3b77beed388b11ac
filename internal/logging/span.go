package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Span times one logical unit of work, such as a sync pass, and logs its outcome.
type Span struct {
	name   string
	logger *slog.Logger
	start  time.Time
}

// StartSpan derives a child span from ctx. The returned context carries a logger
// tagged with the span name and ids so nested work logs under it.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	base := FromContext(ctx)
	if b, ok := ctx.Value(spanBaseKey).(*slog.Logger); ok && b != nil {
		base = b
	} else {
		ctx = context.WithValue(ctx, spanBaseKey, base)
	}

	spanID := uuid.NewString()
	logger := base.With(
		slog.String("span_id", spanID),
		slog.String("span_name", name),
	)
	if parent := spanIDFromContext(ctx); parent != "" {
		logger = logger.With(slog.String("parent_span_id", parent))
	}

	ctx = WithLogger(ctx, logger)
	ctx = withSpanID(ctx, spanID)

	return ctx, &Span{name: name, logger: logger, start: time.Now()}
}

// Logger returns the span-scoped logger.
func (s *Span) Logger() *slog.Logger {
	if s == nil {
		return slog.Default()
	}
	return s.logger
}

// End logs completion. A non-nil err is logged at warn level with the error attached.
func (s *Span) End(err error) {
	if s == nil {
		return
	}
	elapsed := slog.Duration("duration", time.Since(s.start))
	if err != nil {
		s.logger.Warn("span failed", elapsed, slog.Any("error", err))
		return
	}
	s.logger.Info("span completed", elapsed)
}
