package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Init configures the process-wide logger. Level comes from LOG_LEVEL,
// defaulting to info.
func Init() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logrus.SetOutput(os.Stdout)
	level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// For returns a component-tagged entry.
func For(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}
