package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ComponentLogger provides structured logging for ingester components
type ComponentLogger struct {
	logger zerolog.Logger
}

// Options selects level and output format. Format "json" writes raw JSON
// lines; anything else uses the console writer.
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

// NewComponentLogger creates a component-specific logger with consistent context
func NewComponentLogger(componentName, version string, opts Options) *ComponentLogger {
	zerolog.TimeFieldFormat = time.RFC3339

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.Format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(out).
		Level(parseLevel(opts.Level)).
		With().
		Timestamp().
		Str("component", componentName).
		Str("version", version).
		Logger()

	return &ComponentLogger{logger: logger}
}

// Nop returns a logger that discards everything.
func Nop() *ComponentLogger {
	return &ComponentLogger{logger: zerolog.Nop()}
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// With returns a child logger tagged with a module name.
func (cl *ComponentLogger) With(module string) *ComponentLogger {
	return &ComponentLogger{logger: cl.logger.With().Str("module", module).Logger()}
}

func (cl *ComponentLogger) Info() *zerolog.Event {
	return cl.logger.Info()
}

func (cl *ComponentLogger) Error() *zerolog.Event {
	return cl.logger.Error()
}

func (cl *ComponentLogger) Warn() *zerolog.Event {
	return cl.logger.Warn()
}

func (cl *ComponentLogger) Debug() *zerolog.Event {
	return cl.logger.Debug()
}

// LogStartup logs service startup with structured fields
func (cl *ComponentLogger) LogStartup(config StartupConfig) {
	cl.Info().
		Str("source_directory", config.SourceDirectory).
		Str("database_driver", config.DatabaseDriver).
		Int("flush_rows", config.FlushRows).
		Int("health_port", config.HealthPort).
		Int("grpc_port", config.GRPCPort).
		Msg("Starting mirror importer")
}

// LogCommit logs one committed record file
func (cl *ComponentLogger) LogCommit(stats CommitStats) {
	cl.Info().
		Int64("index", stats.Index).
		Str("name", stats.Name).
		Int("mutations", stats.Mutations).
		Int("current_rows", stats.CurrentRows).
		Int("history_rows", stats.HistoryRows).
		Int("event_rows", stats.EventRows).
		Int("dropped", stats.Dropped).
		Dur("duration", stats.Duration).
		Msg("Record file committed")
}

// StartupConfig represents service startup configuration
type StartupConfig struct {
	SourceDirectory string
	DatabaseDriver  string
	FlushRows       int
	HealthPort      int
	GRPCPort        int
}

// CommitStats summarizes one record file commit
type CommitStats struct {
	Index       int64
	Name        string
	Mutations   int
	CurrentRows int
	HistoryRows int
	EventRows   int
	Dropped     int
	Duration    time.Duration
}
