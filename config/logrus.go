package config

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the logger handed to the runner and normalizer.
func NewLogger(s *Settings) *logrus.Logger {
	logg := logrus.New()
	if s != nil && s.LogFormat == "text" {
		logg.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logg.SetFormatter(&logrus.JSONFormatter{})
	}
	level := logrus.InfoLevel
	if s != nil {
		if parsed, err := logrus.ParseLevel(s.LogLevel); err == nil {
			level = parsed
		}
	}
	logg.SetLevel(level)
	logg.SetOutput(os.Stdout)
	return logg
}

func LogError(logger *logrus.Logger, moduleName string, funcName string, context string, data any, err error) {
	if data != nil {
		logger.WithFields(logrus.Fields{
			"module":   moduleName,
			"funcName": funcName,
			"context":  context,
			"data":     data,
		}).Error(err.Error())
	} else {
		logger.WithFields(logrus.Fields{
			"module":   moduleName,
			"funcName": funcName,
			"context":  context,
		}).Error(err.Error())
	}
}
