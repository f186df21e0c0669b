// Package logging wires structured JSON logging for the daemon. Lines carry
// timestamp/severity/message keys so the collector can ingest them without a
// mapping layer, and the minimum level follows the configured environment.
package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

// Setup installs the process-wide logger for the named service and returns it.
// The standard library logger is bridged onto the same handler so third-party
// packages logging through "log" stay structured.
func Setup(service, env string) *slog.Logger {
	return setup(os.Stdout, service, env)
}

func setup(w io.Writer, service, env string) *slog.Logger {
	env = strings.TrimSpace(env)
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       levelFor(env),
		ReplaceAttr: renameAttr,
	})

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	tagged := handler.WithAttrs(attrs)

	base := slog.New(tagged)
	slog.SetDefault(base)

	bridge := slog.NewLogLogger(tagged, slog.LevelInfo)
	bridge.SetFlags(0)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}

// levelFor keeps local runs chatty; anything that is not a recognised dev
// environment logs at info and above.
func levelFor(env string) slog.Level {
	switch strings.ToLower(env) {
	case "", "dev", "development", "local":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

var renamedKeys = map[string]string{
	slog.TimeKey:    "timestamp",
	slog.LevelKey:   "severity",
	slog.MessageKey: "message",
}

func renameAttr(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return attr
	}
	renamed, ok := renamedKeys[attr.Key]
	if !ok {
		return attr
	}
	if attr.Key == slog.LevelKey {
		return slog.String(renamed, strings.ToUpper(attr.Value.String()))
	}
	attr.Key = renamed
	return attr
}
