package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

type Logger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

type Config struct {
	Level      string `json:"level"`
	Format     string `json:"format"` // json, text
	Output     string `json:"output"` // stdout, stderr, file path
	TimeFormat string `json:"time_format"`
	Caller     bool   `json:"caller"`
}

func NewLogger(config *Config) (*Logger, error) {
	l := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if config.Format == "text" {
		l.SetFormatter(&logrus.TextFormatter{TimestampFormat: config.TimeFormat})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: config.TimeFormat})
	}

	switch config.Output {
	case "stderr":
		l.SetOutput(os.Stderr)
	case "stdout", "":
		l.SetOutput(os.Stdout)
	default:
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return nil, err
		}
		l.SetOutput(file)
	}

	l.SetReportCaller(config.Caller)

	return &Logger{
		logger: l,
		fields: make(logrus.Fields),
	}, nil
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	fields := make(logrus.Fields, len(l.fields)+1)
	for k, v := range l.fields {
		fields[k] = v
	}
	fields[key] = value

	return &Logger{logger: l.logger, fields: fields}
}

func (l *Logger) WithFields(newFields map[string]interface{}) *Logger {
	fields := make(logrus.Fields, len(l.fields)+len(newFields))
	for k, v := range l.fields {
		fields[k] = v
	}
	for k, v := range newFields {
		fields[k] = v
	}

	return &Logger{logger: l.logger, fields: fields}
}

func (l *Logger) WithError(err error) *Logger {
	return l.WithField("error", err.Error())
}

func (l *Logger) Debug(args ...interface{}) { l.entry().Debug(args...) }
func (l *Logger) Info(args ...interface{})  { l.entry().Info(args...) }
func (l *Logger) Warn(args ...interface{})  { l.entry().Warn(args...) }
func (l *Logger) Error(args ...interface{}) { l.entry().Error(args...) }
func (l *Logger) Fatal(args ...interface{}) { l.entry().Fatal(args...) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.entry().Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.entry().Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.entry().Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry().Errorf(format, args...) }
func (l *Logger) Fatalf(format string, args ...interface{}) { l.entry().Fatalf(format, args...) }

func (l *Logger) entry() *logrus.Entry {
	return l.logger.WithFields(l.fields)
}

// Default returns a logger suitable before configuration is loaded.
func Default() *Logger {
	l, _ := NewLogger(&Config{Level: "info", Format: "json"})
	return l
}
