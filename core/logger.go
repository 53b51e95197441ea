package core

// Logger reports app events to the configured sink(s).
// Implementations may attach the session identity when one is passed as an arg.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
