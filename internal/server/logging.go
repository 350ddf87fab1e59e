package server

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

const plainTimeLayout = "2006-01-02 15:04:05"

// PlainFormatter prints "[time] LEVEL message (k=v k=v)" lines.
type PlainFormatter struct{}

// Format implements logrus.Formatter.
func (f *PlainFormatter) Format(e *logrus.Entry) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 128))
	fmt.Fprintf(buf, "[%s] %-5s %s", e.Time.Format(plainTimeLayout), strings.ToUpper(e.Level.String()), e.Message)

	if len(e.Data) > 0 {
		keys := make([]string, 0, len(e.Data))
		for k := range e.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(' ')
			}
			fmt.Fprintf(buf, "%s=%v", k, e.Data[k])
		}
		buf.WriteByte(')')
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// NewLogger builds the process logger. format is "text", "json" or "plain".
func NewLogger(level, format string, out io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "plain":
		logger.SetFormatter(&PlainFormatter{})
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
	return logger, nil
}
