package main

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestConfigureLogging(t *testing.T) {
	prevLevel, prevFormatter := log.GetLevel(), log.StandardLogger().Formatter
	t.Cleanup(func() {
		log.SetLevel(prevLevel)
		log.SetFormatter(prevFormatter)
	})

	for level, want := range map[string]log.Level{
		"debug":   log.DebugLevel,
		"WARN":    log.WarnLevel,
		"error":   log.ErrorLevel,
		"verbose": log.InfoLevel,
		"":        log.InfoLevel,
	} {
		configureLogging(level, false)
		assert.Equal(t, want, log.GetLevel(), "level %q", level)
	}
	assert.IsType(t, &log.TextFormatter{}, log.StandardLogger().Formatter)

	configureLogging("info", true)
	assert.IsType(t, &log.JSONFormatter{}, log.StandardLogger().Formatter)
}
