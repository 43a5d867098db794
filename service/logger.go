package service

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type Format string

const (
	timeFormat = time.RFC3339Nano

	JSON  Format = "json"
	Plain Format = "plain"
)

// NewLogger initializes a new (logrus) Logger instance writing to stderr.
// Supported log formats are: plain, json
func NewLogger(logLevel, logFormat string) (*logrus.Entry, error) {
	return NewLoggerWithOutput(logLevel, logFormat, os.Stderr)
}

// NewLoggerWithOutput is NewLogger with an explicit destination.
func NewLoggerWithOutput(logLevel, logFormat string, out io.Writer) (*logrus.Entry, error) {
	lvl, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}

	format := Format(logFormat)
	if err := checkFormat(format); err != nil {
		return nil, err
	}

	l := newFormattedLogger(lvl, format, out)

	return logrus.NewEntry(l).WithFields(logrus.Fields{
		"serviceName": ServiceName,
		"version":     FullVersion,
	}), nil
}

func newFormattedLogger(logLevel logrus.Level, logFormat Format, out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)

	fieldMap := logrus.FieldMap{logrus.FieldKeyMsg: "message"}
	switch logFormat {
	case Plain:
		l.SetFormatter(&logrus.TextFormatter{FieldMap: fieldMap, TimestampFormat: timeFormat})
	default:
		l.SetFormatter(&logrus.JSONFormatter{FieldMap: fieldMap, TimestampFormat: timeFormat})
	}

	l.SetLevel(logLevel)

	if logLevel >= logrus.DebugLevel {
		l.Warn(fmt.Sprintf("%s RUNNING IN DEBUG MODE. DO NOT RUN IN PRODUCTION ENVIRONMENT", strings.ToUpper(ServiceName)))
	}
	return l
}

func checkFormat(f Format) error {
	switch f {
	case JSON, Plain:
		return nil
	default:
		return fmt.Errorf("invalid %s log format input '%v'", ServiceName, f)
	}
}
