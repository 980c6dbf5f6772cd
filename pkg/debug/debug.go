// Package debug provides category-gated debug logging on top of log/slog.
//
// Categories choose what is logged and come from KIKAIKEN_DEBUG or the
// logging.debug config key. The level comes from KIKAIKEN_LOG_LEVEL or
// logging.level. The environment wins over config in both cases.
//
//	debug.Log("providers", "adapter created", "provider", name)
//
// Known categories: providers, talk, storage, auth, transport, config, all.
// Handlers installed by Init mask API keys and bearer tokens.
package debug

import (
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync/atomic"
)

// LevelTrace sits below slog.LevelDebug.
const LevelTrace = slog.LevelDebug - 4

// Environment variables read by Init.
const (
	EnvCategories = "KIKAIKEN_DEBUG"
	EnvLevel      = "KIKAIKEN_LOG_LEVEL"
)

type categorySet map[string]struct{}

var enabled atomic.Pointer[categorySet]

func init() {
	setCategories(os.Getenv(EnvCategories))
}

// Init installs the default slog logger. Empty arguments fall back to the
// environment, then to INFO text output on stderr.
func Init(configCategories, configLevel, format string) {
	cats := os.Getenv(EnvCategories)
	if cats == "" {
		cats = configCategories
	}
	setCategories(cats)

	level := os.Getenv(EnvLevel)
	if level == "" {
		level = configLevel
	}
	slog.SetDefault(slog.New(NewHandler(os.Stderr, ParseLevel(level), format)))
}

// NewHandler returns a redacting text or JSON handler writing to w.
func NewHandler(w io.Writer, level slog.Level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return NewRedactHandler(slog.NewJSONHandler(w, opts))
	}
	return NewRedactHandler(slog.NewTextHandler(w, opts))
}

// Enabled reports whether category is switched on, either by name or
// through "all".
func Enabled(category string) bool {
	set := *enabled.Load()
	if _, ok := set["all"]; ok {
		return true
	}
	_, ok := set[category]
	return ok
}

// Log writes a debug record tagged with category when it is enabled.
func Log(category, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// ParseLevel maps ERROR, WARN, INFO, DEBUG and TRACE (any case) to a level.
// Unknown values mean INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Categories returns the enabled categories in sorted order.
func Categories() []string {
	set := *enabled.Load()
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

func setCategories(s string) {
	set := parseCategories(s)
	enabled.Store(&set)
}

func parseCategories(s string) categorySet {
	set := categorySet{}
	for _, c := range strings.Split(s, ",") {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			set[c] = struct{}{}
		}
	}
	return set
}
