// Пакет logging настраивает глобальный slog-логгер
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New создаёт логгер: формат text или json, уровень DEBUG в режиме отладки
func New(w io.Writer, debug bool, format string) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Setup делает логгер в stdout логгером по умолчанию
func Setup(debug bool, format string) *slog.Logger {
	logger := New(os.Stdout, debug, format)
	slog.SetDefault(logger)
	return logger
}
