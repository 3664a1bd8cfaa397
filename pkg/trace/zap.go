package trace

import (
	"go.uber.org/zap"
)

// ZapObserver writes traced calls to a zap logger
type ZapObserver struct {
	Logger *zap.Logger
}

// NewZapObserver wraps l, naming it "trace"
func NewZapObserver(l *zap.Logger) ZapObserver {
	return ZapObserver{Logger: l.Named("trace")}
}

func (o ZapObserver) Observe(c Call) {
	fields := []zap.Field{
		zap.String("api", c.API),
		zap.Int32("code", int32(c.Code)),
		zap.Duration("took", c.Duration),
	}
	if c.Err != nil {
		o.Logger.Warn("call failed", append(fields, zap.Error(c.Err))...)
		return
	}
	o.Logger.Debug("call", fields...)
}
