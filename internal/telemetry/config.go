package telemetry

import "time"

const (
	// DefaultQueueSize is the span queue capacity.
	DefaultQueueSize = 1000

	// DefaultDequeueTimeout bounds how long the writer waits for a span
	// before re-checking for shutdown.
	DefaultDequeueTimeout = time.Second

	// DefaultStatementMaxLen caps the stored statement text.
	DefaultStatementMaxLen = 500
)

// Config holds query instrumentation settings.
type Config struct {
	Enabled         bool          `json:"enabled"`
	QueueSize       int           `json:"queue_size"`
	DequeueTimeout  time.Duration `json:"dequeue_timeout"`
	StatementMaxLen int           `json:"statement_max_len"`
}

// DefaultConfig returns instrumentation defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		QueueSize:       DefaultQueueSize,
		DequeueTimeout:  DefaultDequeueTimeout,
		StatementMaxLen: DefaultStatementMaxLen,
	}
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.DequeueTimeout <= 0 {
		c.DequeueTimeout = DefaultDequeueTimeout
	}
	if c.StatementMaxLen <= 0 {
		c.StatementMaxLen = DefaultStatementMaxLen
	}
	return c
}
