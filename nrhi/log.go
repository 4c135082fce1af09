package nrhi

import "go.uber.org/zap"

// nopLogger is used by an Index constructed without an explicit
// Config.Logger, so every log call site can stay unconditional.
func nopLogger() *zap.Logger {
	return zap.NewNop()
}
