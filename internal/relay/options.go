package relay

import "go.uber.org/zap"

// Option is a function that configures a relay component.
type Option func(*options)

// WithLog configures the component with a logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.Log = log
	}
}

type options struct {
	Log *zap.SugaredLogger
}

func newOptions() *options {
	return &options{
		Log: zap.NewNop().Sugar(),
	}
}
