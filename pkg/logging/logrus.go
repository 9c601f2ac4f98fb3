package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logrus builds context-tagged logrus entries sharing one level and output.
type Logrus struct {
	level  string
	output io.Writer
	fields logrus.Fields
}

// New creates a factory. An unparsable level falls back to info.
func New(level string, output io.Writer) *Logrus {
	return &Logrus{level: level, output: output, fields: logrus.Fields{}}
}

// With returns a factory whose entries all carry key=value.
func (l *Logrus) With(key string, value any) *Logrus {
	fields := make(logrus.Fields, len(l.fields)+1)
	for k, v := range l.fields {
		fields[k] = v
	}
	fields[key] = value
	return &Logrus{level: l.level, output: l.output, fields: fields}
}

// Get returns an entry tagged with the given context.
func (l *Logrus) Get(context string) *logrus.Entry {
	log := logrus.New()
	level, err := logrus.ParseLevel(l.level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(l.output)

	return log.WithFields(l.fields).WithField("Context", context)
}
