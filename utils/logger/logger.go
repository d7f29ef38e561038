package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	logrusSentry "github.com/chadsr/logrus-sentry"
	"github.com/getsentry/sentry-go"
	"github.com/oneclickdz/ocpay-reconciler/config"
	"github.com/sirupsen/logrus"
)

var logger = logrus.New()

// sentryLevels are forwarded to Sentry in production and staging
var sentryLevels = []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel}

func init() {
	Init(*config.ServerConfig(), os.Stdout)
}

// Init (re)configures the logger for the given server configuration.
// Production and staging forward warnings and errors to Sentry.
func Init(cfg config.ServerConfiguration, output io.Writer) {
	logger.Level = logrus.InfoLevel
	if cfg.Debug {
		logger.Level = logrus.DebugLevel
	}
	logger.Formatter = &formatter{}
	logger.Out = output
	logger.ReplaceHooks(make(logrus.LevelHooks))

	if (cfg.Environment == "production" || cfg.Environment == "staging") && cfg.SentryDSN != "" {
		options := sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			AttachStacktrace: true,
		}
		if err := sentry.Init(options); err != nil {
			logger.Errorf("Sentry initialization failed: %v", err)
			return
		}

		hook, err := logrusSentry.NewHook(options, sentryLevels...)
		if err != nil {
			logger.Errorf("Sentry hook initialization failed: %v", err)
			return
		}
		logger.AddHook(hook)
	}
}

// SetLogLevel sets the log level for the logger.
func SetLogLevel(level logrus.Level) {
	logger.Level = level
}

// SetOutput redirects log output, mostly for tests
func SetOutput(w io.Writer) {
	logger.Out = w
}

// Fields type, used to pass to `WithFields`.
type Fields logrus.Fields

// WithFields returns an entry carrying the given structured context
func WithFields(fields Fields) *logrus.Entry {
	return logger.WithFields(logrus.Fields(fields))
}

// Debugf logs a message at level Debug
func Debugf(format string, args ...interface{}) {
	logger.Debugf(format, args...)
}

// Infof logs a message at level Info
func Infof(format string, args ...interface{}) {
	logger.Infof(format, args...)
}

// Warnf logs a message at level Warn
func Warnf(format string, args ...interface{}) {
	logger.Warnf(format, args...)
}

// Errorf logs a message at level Error
func Errorf(format string, args ...interface{}) {
	logger.Errorf(format, args...)
}

// Fatalf logs a message at level Fatal and exits
func Fatalf(format string, args ...interface{}) {
	logger.Fatalf(format, args...)
}

// Formatter implements logrus.Formatter interface
type formatter struct {
	prefix string
}

// Format building log message
func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	var sb bytes.Buffer
	sb.WriteString(strings.ToUpper(entry.Level.String()))
	sb.WriteString(" ")
	sb.WriteString(entry.Time.Format(time.RFC3339))
	sb.WriteString(" ")
	sb.WriteString(f.prefix)
	sb.WriteString(entry.Message)

	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for key := range entry.Data {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		sb.WriteString(" [")
		for _, key := range keys {
			sb.WriteString(fmt.Sprintf("%s=%v ", key, entry.Data[key]))
		}
		sb.WriteString("]")
	}
	sb.WriteString("\n")

	return sb.Bytes(), nil
}
