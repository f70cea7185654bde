package transaction

import (
	"io"
	"log/slog"
)

// Option configures a UnitOfWork.
type Option func(*UnitOfWork)

// WithPolicy sets the transaction policy. Default: PolicyOpen.
func WithPolicy(p Policy) Option {
	return func(u *UnitOfWork) {
		u.policy = p
	}
}

// WithStrictOuter makes PolicyContinue fail with ErrNoOuterTransaction when
// the driver has no open transaction to join.
func WithStrictOuter(strict bool) Option {
	return func(u *UnitOfWork) {
		u.strictOuter = strict
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(u *UnitOfWork) {
		if l == nil {
			l = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		u.logger = l
	}
}

// WithMetrics records run activity into m.
func WithMetrics(m *Metrics) Option {
	return func(u *UnitOfWork) {
		u.metrics = m
	}
}

// WithRunIDGenerator sets how run IDs are produced. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(u *UnitOfWork) {
		u.ids = g
	}
}
