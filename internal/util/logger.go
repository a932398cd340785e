package util

import (
	"log"
	"strings"

	"github.com/sirupsen/logrus"
)

// SetupGlobalLogger routes the standard log package through the global
// logger so third-party output ends up in the same place.
func SetupGlobalLogger() {
	log.SetFlags(0)
	log.SetOutput(&logWriter{logger: GetLogger()})
}

type logWriter struct {
	logger *logrus.Logger
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	w.logger.Info(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
