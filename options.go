package literecord

import (
	"time"

	"go.uber.org/zap"
)

type options struct {
	logger   *zap.Logger
	grammar  *Grammar
	now      func() time.Time
	pageSize uint64
}

// Option configures a Compiler or a Store.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithGrammar replaces DefaultGrammar.
func WithGrammar(g *Grammar) Option {
	return func(o *options) {
		if g != nil {
			o.grammar = g
		}
	}
}

// WithClock sets the time source used for timestamps and soft deletes.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithPageSize sets the page size List uses when none is given.
func WithPageSize(n uint64) Option {
	return func(o *options) {
		o.pageSize = n
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger:   zap.NewNop(),
		grammar:  DefaultGrammar,
		now:      time.Now,
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
