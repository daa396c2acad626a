// Package logger configures the process-wide zerolog logger and hands out
// component-scoped children of it.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the process-wide logger, configured once by Initialize.
var Log zerolog.Logger

// Initialize sets up the global logger. level is a zerolog level name
// ("debug", "info", "warn", "error"); pretty switches to a human-readable
// console writer instead of JSON.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().Str("service", "nanocld").Logger()
	Log.Info().Str("level", logLevel.String()).Bool("pretty", pretty).Msg("logger initialized")
}

// GetLogger returns the global logger instance.
func GetLogger() *zerolog.Logger {
	return &Log
}

func component(name string) *zerolog.Logger {
	l := Log.With().Str("component", name).Logger()
	return &l
}

// Store returns the Store Gateway's logger.
func Store() *zerolog.Logger { return component("store") }

// Event returns the Event Bus's logger.
func Event() *zerolog.Logger { return component("event") }

// Task returns the Task Manager's logger.
func Task() *zerolog.Logger { return component("task") }

// Process returns the Process Controller's logger.
func Process() *zerolog.Logger { return component("process") }

// Reconciler returns the Reconciler's logger.
func Reconciler() *zerolog.Logger { return component("reconciler") }

// HTTP returns the HTTP surface's logger.
func HTTP() *zerolog.Logger { return component("http") }

// Proxy returns the Proxy Rule Translator's logger.
func Proxy() *zerolog.Logger { return component("proxy") }

// VMImage returns the VM Image Manager's logger.
func VMImage() *zerolog.Logger { return component("vmimage") }
