package logger

import (
	"io"

	log "github.com/sirupsen/logrus"
)

// Logger interface is used to allow tests to inject custom loggers.
type Logger interface {
	Fatalf(string, ...interface{})
	Debugf(string, ...interface{})
	Errorf(string, ...interface{})
	Infof(string, ...interface{})
	Warnf(string, ...interface{})
	Debug(...interface{})
	Warn(...interface{})
	Info(...interface{})
	Fatal(...interface{})
	Writer() io.Writer
	SetWriter(io.Writer)
	Prefix(string)
	Silent(bool)
}

type logger struct {
	*log.Logger
	prefix string
	// saved holds the writer replaced while silent.
	saved io.Writer
}

// NewLogger returns a new Logger instance backed by Logrus.
func NewLogger(level uint32) Logger {
	l := log.New()
	l.SetLevel(log.Level(level))
	logFormatter := &log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	}
	l.Formatter = logFormatter
	return &logger{Logger: l}
}

func (l *logger) Writer() io.Writer {
	return l.Out
}

func (l *logger) SetWriter(writer io.Writer) {
	l.Out = writer
}

// Prefix sets a string prepended to every message. An empty string clears it.
func (l *logger) Prefix(prefix string) {
	l.prefix = prefix
}

// Silent discards all output until Silent(false) is called. Disabling silent
// mode without enabling it first panics.
func (l *logger) Silent(enable bool) {
	if enable {
		if l.saved == nil {
			l.saved = l.Out
			l.Out = io.Discard
		}
		return
	}
	if l.saved == nil {
		panic("logger: Silent(false) called without Silent(true)")
	}
	l.Out = l.saved
	l.saved = nil
}

func (l *logger) Fatalf(format string, v ...interface{}) {
	l.Logger.Fatalf(l.prefix+format, v...)
}

func (l *logger) Debugf(format string, v ...interface{}) {
	l.Logger.Debugf(l.prefix+format, v...)
}

func (l *logger) Errorf(format string, v ...interface{}) {
	l.Logger.Errorf(l.prefix+format, v...)
}

func (l *logger) Infof(format string, v ...interface{}) {
	l.Logger.Infof(l.prefix+format, v...)
}

func (l *logger) Warnf(format string, v ...interface{}) {
	l.Logger.Warnf(l.prefix+format, v...)
}

func (l *logger) Debug(v ...interface{}) {
	l.Logger.Debug(l.withPrefix(v)...)
}

func (l *logger) Warn(v ...interface{}) {
	l.Logger.Warn(l.withPrefix(v)...)
}

func (l *logger) Info(v ...interface{}) {
	l.Logger.Info(l.withPrefix(v)...)
}

func (l *logger) Fatal(v ...interface{}) {
	l.Logger.Fatal(l.withPrefix(v)...)
}

func (l *logger) withPrefix(v []interface{}) []interface{} {
	if l.prefix == "" {
		return v
	}
	return append([]interface{}{l.prefix}, v...)
}

// NewNopLogger returns a Logger that writes nothing.
func NewNopLogger() Logger {
	l := NewLogger(uint32(log.PanicLevel))
	l.SetWriter(io.Discard)
	return l
}
