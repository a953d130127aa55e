package lnurl

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupLogging configures the global logrus logger: stdout, plus a
// rotating file when Log.File is set.
func SetupLogging(c Config) error {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return NewErr(ConfigError, "invalid log level %q: %v", c.Log.Level, err)
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	var out io.Writer = os.Stdout
	if c.Log.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   CleanAndExpandPath(c.Log.File),
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			Compress:   true,
		})
	}
	log.SetOutput(out)
	return nil
}
