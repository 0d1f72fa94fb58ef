// Package logger defines the structured logging interface used by every go-tempsim package.
//
// Components never log through a concrete framework directly: they accept a Logger through
// a WithLogger option and fall back to the package default returned by GetLogger.
//
// Log Levels:
//
//   - DebugLevel: per-attempt protocol traffic (frames sent, bytes received).
//   - InfoLevel: port binding, firmware identification, configuration changes.
//   - WarnLevel: exhausted requests, skipped discovery candidates.
//   - ErrorLevel: transport faults.
//   - FatalLevel: unrecoverable CLI failures.
package logger

// Level indicates the logging severity level.
type Level = int8

// LogLevel is an alias of Level kept for callers that prefer the longer name.
type LogLevel = Level

const (
	// DebugLevel logs are voluminous and usually disabled outside of bench debugging.
	DebugLevel Level = iota - 1
	// InfoLevel is the default logging priority.
	InfoLevel
	// WarnLevel logs are more important than Info, but don't need individual human review.
	WarnLevel
	// ErrorLevel logs are high-priority. A healthy device link shouldn't produce any.
	ErrorLevel
	// FatalLevel logs a message, then calls os.Exit(1).
	FatalLevel
)

// ParseLevel converts a level name ("debug", "info", "warn", "error", "fatal") into a Level.
// Unknown names map to InfoLevel and ok reports false.
func ParseLevel(name string) (level Level, ok bool) {
	switch name {
	case "debug":
		return DebugLevel, true
	case "info":
		return InfoLevel, true
	case "warn", "warning":
		return WarnLevel, true
	case "error":
		return ErrorLevel, true
	case "fatal":
		return FatalLevel, true
	default:
		return InfoLevel, false
	}
}

// Logger defines a common interface for structured logging.
type Logger interface {
	// Debug logs a message at DebugLevel with the given key-value pairs.
	Debug(msg string, keysAndValues ...any)
	// Info logs a message at InfoLevel with the given key-value pairs.
	Info(msg string, keysAndValues ...any)
	// Warn logs a message at WarnLevel with the given key-value pairs.
	Warn(msg string, keysAndValues ...any)
	// Error logs a message at ErrorLevel with the given key-value pairs.
	Error(msg string, keysAndValues ...any)
	// Fatal logs a message at FatalLevel and then calls os.Exit(1).
	Fatal(msg string, keysAndValues ...any)
	// With creates a child logger carrying the given key-value pairs.
	// Key-values added to the child don't affect the parent, and vice versa.
	With(keyValues ...any) Logger
	// Level returns the minimum enabled level for this logger.
	Level() Level
	// SetLevel sets the minimum enabled level for this logger.
	SetLevel(level Level)
}
