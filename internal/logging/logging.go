// Package logging configures the process logger.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Options configures New.
type Options struct {
	Verbose bool
	Format  string // "text" (default) or "json"
	Out     io.Writer
	NoColor bool
}

// New returns a logger writing to opts.Out (stderr by default).
func New(opts Options) *logrus.Logger {
	logger := logrus.New()
	if opts.Out != nil {
		logger.SetOutput(opts.Out)
	} else {
		logger.SetOutput(os.Stderr)
	}

	logger.SetLevel(logrus.InfoLevel)
	if opts.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	if strings.EqualFold(opts.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&ConsoleFormatter{DisableColors: opts.NoColor})
	}
	return logger
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// ConsoleFormatter renders "[LEVEL] message key=value ..." lines.
type ConsoleFormatter struct {
	DisableColors bool
}

var levelTags = map[logrus.Level]struct {
	tag   string
	color *color.Color
}{
	logrus.PanicLevel: {"[ERROR]", color.New(color.FgRed, color.Bold)},
	logrus.FatalLevel: {"[ERROR]", color.New(color.FgRed, color.Bold)},
	logrus.ErrorLevel: {"[ERROR]", color.New(color.FgRed)},
	logrus.WarnLevel:  {"[WARN]", color.New(color.FgYellow)},
	logrus.InfoLevel:  {"[INFO]", color.New(color.FgCyan)},
	logrus.DebugLevel: {"[DEBUG]", color.New(color.FgHiBlack)},
	logrus.TraceLevel: {"[DEBUG]", color.New(color.FgHiBlack)},
}

// Format implements logrus.Formatter.
func (f *ConsoleFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer

	lt, ok := levelTags[e.Level]
	if !ok {
		lt = levelTags[logrus.InfoLevel]
	}
	if f.DisableColors {
		b.WriteString(lt.tag)
	} else {
		b.WriteString(lt.color.Sprint(lt.tag))
	}
	b.WriteByte(' ')
	b.WriteString(e.Message)

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, formatValue(e.Data[k]))
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func formatValue(v any) string {
	var s string
	switch x := v.(type) {
	case error:
		s = x.Error()
	case string:
		s = x
	default:
		s = fmt.Sprint(x)
	}
	if strings.ContainsAny(s, " \t\"=") {
		return fmt.Sprintf("%q", s)
	}
	return s
}
