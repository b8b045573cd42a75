/*
Package log provides the module loggers of the sequencer, built on zerolog
(https://github.com/rs/zerolog).

Loggers are configured from an optional toml file. Every field is optional:

	# default level of every module: debug/info/warn/error/fatal/panic
	level = "info"

	# output formatter: console, console_no_color or json
	formatter = "json"

	# stdout, stderr or a file path
	out = "stderr"

	# print source file and line
	caller = false

	# time field layout, see time/format.go
	timefieldformat = "3:04 PM"

	# per module overrides; only level and out are read
	[coordinator]
	level = "debug"

	[publisher]
	out = "/var/log/sequencer/publisher.log"

The file is looked up as seqlog.toml in the working directory, or at the path
given by the SEQUENCER_LOGCONFIG environment variable. The package configures
itself the first time a logger is requested, before any flags are parsed.
*/
package log

import (
	"errors"
	"io"
	"os"
	"strings"
	"sync"

	colorable "github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const (
	confFilePathKey     = "LOGCONFIG"
	confEnvPrefix       = "SEQUENCER"
	defaultConfFileName = "seqlog"
)

var (
	baseLogger  = zerolog.New(os.Stderr)
	baseLevel   = zerolog.InfoLevel
	logInitLock sync.Mutex
	isLogInit   = false
	viperConf   = viper.New()
)

// Logger is a zerolog logger tagged with its module name.
type Logger struct {
	*zerolog.Logger
	name  string
	level zerolog.Level
}

func loadConfigFile() {
	viperConf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperConf.SetEnvPrefix(confEnvPrefix)
	viperConf.AutomaticEnv()

	viperConf.SetConfigType("toml")
	viperConf.SetConfigName(defaultConfFileName)
	viperConf.AddConfigPath(".")

	if confFilePath := viperConf.GetString(confFilePathKey); confFilePath != "" {
		viperConf.SetConfigFile(confFilePath)
		baseLogger.Info().Str("file", confFilePath).Msg("Init logger from configuration file")
	}

	err := viperConf.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			baseLogger.Error().Err(err).Msg("Failed to read logger config file")
		}
	}
}

func formatWriter(formatter string, out io.Writer, outFile *os.File) io.Writer {
	switch strings.ToLower(formatter) {
	case "", "json":
		return out
	case "console":
		var w io.Writer = out
		if outFile != nil {
			w = colorable.NewColorable(outFile)
		}
		return zerolog.ConsoleWriter{Out: w, NoColor: false, TimeFormat: zerolog.TimeFieldFormat}
	case "console_no_color":
		return zerolog.ConsoleWriter{Out: out, NoColor: true, TimeFormat: zerolog.TimeFieldFormat}
	default:
		baseLogger.Warn().Str("formatter", formatter).Msg("Invalid formatter, must be console, console_no_color or json")
		return out
	}
}

func parseLevel(level string, fallback zerolog.Level) zerolog.Level {
	if level == "" {
		return fallback
	}
	zLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		baseLogger.Warn().Err(err).Str("level", level).Msg("Failed to parse log level")
		return fallback
	}
	return zLevel
}

func initLog() {
	if format := viperConf.GetString("timefieldformat"); format != "" {
		zerolog.TimeFieldFormat = format
	}

	out := os.Stderr
	if outputName := viperConf.GetString("out"); outputName != "" {
		o, err := getOutput(outputName)
		if err != nil {
			baseLogger.Warn().Err(err).Str("outputName", outputName).Msg("Failed to open log output, using stderr")
		} else {
			out = o
		}
	}
	baseLogger = baseLogger.Output(formatWriter(viperConf.GetString("formatter"), out, out))

	if viperConf.GetBool("caller") {
		baseLogger = baseLogger.With().Caller().Logger()
	}

	baseLevel = parseLevel(viperConf.GetString("level"), zerolog.InfoLevel)
	baseLogger = baseLogger.With().Timestamp().Logger().Level(baseLevel)
}

func ensureInit(withConfig bool) {
	if isLogInit {
		return
	}
	if withConfig {
		loadConfigFile()
	}
	initLog()
	isLogInit = true
}

// NewLogger returns a logger whose entries carry module=moduleName. Levels and
// outputs can be overridden per module in the config file.
func NewLogger(moduleName string) *Logger {
	logInitLock.Lock()
	defer logInitLock.Unlock()
	ensureInit(true)

	zLogger := baseLogger.With().Str("module", moduleName).Logger()
	zLevel := baseLevel
	if sub := viperConf.Sub(moduleName); sub != nil {
		if outputName := sub.GetString("out"); outputName != "" {
			out, err := getOutput(outputName)
			if err != nil {
				baseLogger.Warn().Err(err).Str("outputName", outputName).Str("module", moduleName).
					Msg("Failed to open module log output, using base output")
			} else {
				zLogger = zLogger.Output(out)
			}
		}
		if level := sub.GetString("level"); level != "" {
			zLevel = parseLevel(level, zerolog.InfoLevel)
			zLogger = zLogger.Level(zLevel)
		}
	}

	return &Logger{
		Logger: &zLogger,
		name:   moduleName,
		level:  zLevel,
	}
}

// Default returns the base logger, without a module name.
func Default() *Logger {
	logInitLock.Lock()
	defer logInitLock.Unlock()
	ensureInit(false)

	return &Logger{
		Logger: &baseLogger,
		level:  baseLevel,
	}
}

// Nop returns a logger that discards everything. Meant for tests.
func Nop() *Logger {
	zLogger := zerolog.Nop()
	return &Logger{
		Logger: &zLogger,
		name:   "nop",
		level:  zerolog.Disabled,
	}
}

var errEmptyName = errors.New("empty log output name")

// getOutput opens the writer named by outName: stdout, stderr or a file path,
// which is created or appended to.
func getOutput(outName string) (*os.File, error) {
	switch outName {
	case "":
		return nil, errEmptyName
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		return os.OpenFile(outName, os.O_WRONLY|os.O_CREATE|os.O_APPEND|os.O_SYNC, 0644)
	}
}

// IsDebugEnabled lets callers skip building expensive debug fields.
func (logger *Logger) IsDebugEnabled() bool {
	return logger.level <= zerolog.DebugLevel
}

func (logger *Logger) Level() string {
	return logger.level.String()
}

func (logger *Logger) Name() string {
	return logger.name
}

// WithField returns a child logger carrying an extra string field, e.g. a run id.
func (logger *Logger) WithField(key, value string) *Logger {
	zLogger := logger.Logger.With().Str(key, value).Logger()
	return &Logger{
		Logger: &zLogger,
		name:   logger.name,
		level:  logger.level,
	}
}
