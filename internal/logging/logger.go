package logging

import (
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/DeRuina/timberjack"
	"github.com/sirupsen/logrus"

	"voxbind/internal/config"
)

// New builds the process logger. Output goes to out, plus a rotating file
// when cfg.File is set. The returned closer flushes the file and is never nil.
func New(cfg config.LogConfig, out io.Writer) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()

	level := logrus.InfoLevel
	if cfg.Level != "" {
		if parsed, err := logrus.ParseLevel(strings.ToLower(cfg.Level)); err == nil {
			level = parsed
		}
	}
	logger.SetLevel(level)

	if out == nil {
		out = os.Stderr
	}
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		fileLogger := &timberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		out = io.MultiWriter(out, fileLogger)
		closer = fileLogger
	}
	logger.SetOutput(out)

	logger.SetFormatter(&SourceFormatter{
		Underlying: &logrus.TextFormatter{
			FullTimestamp: true,
			CallerPrettyfier: func(*runtime.Frame) (string, string) {
				return "", ""
			},
		},
	})
	logger.SetReportCaller(true)

	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
