package cmd

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	configVersionKey     = "version"
	currentConfigVersion = 1

	configBaseName   = "trojanforge"
	configFileName   = configBaseName + ".yaml"
	configFolderPath = "."

	outputFlagName       = "output"
	seedFlagName         = "seed"
	strictFlagName       = "strict"
	hierarchicalFlagName = "hierarchical"
	verboseFlagName      = "verbose"
	parallelFlagName     = "parallel"
	numTrojansFlagName   = "num"
	topKFlagName         = "top-k"
	modelFlagName        = "model"
	sampleRateFlagName   = "sample-rate"
	disjointFlagName     = "disjoint"
	counterWidthFlagName = "counter-width"
	featuresFlagName     = "features"
	rankingFlagName      = "ranking"

	seedConfigKey         = "seed"
	strictConfigKey       = "parse.strict"
	hierarchicalConfigKey = "parse.hierarchical"
	parallelConfigKey     = "run.parallel"
	numTrojansConfigKey   = "run.num_trojans"
	topKConfigKey         = "rank.top_k"
	modelConfigKey        = "rank.model"
	sampleRateConfigKey   = "analyze.sample_rate"
	disjointConfigKey     = "synth.disjoint_nets"
	counterWidthConfigKey = "synth.counter_width"

	defaultOutputDir    = "trojanforge_out"
	defaultSeed         = 42
	defaultParallel     = 4
	defaultNumTrojans   = 10
	defaultTopK         = 0 // derived from num_trojans when unset
	defaultSampleRate   = 1.0
	defaultDisjoint     = false
	defaultCounterWidth = 16

	envPrefix = "TROJANFORGE"

	logFilenameKey   = "log.filename"
	logLevelKey      = "log.level"
	logVerboseKey    = "log.verbose"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultLogFilename   = ".trojanforge.log"
	defaultLogLevel      = int(slog.LevelInfo)
	defaultLogVerbose    = false
	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

var globalLogger *slog.Logger

func init() {
	viper.SetConfigName(configBaseName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configFolderPath)
	viper.SetConfigFile(filepath.Join(configFolderPath, configFileName))
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.SetDefault(configVersionKey, currentConfigVersion)
	viper.SetDefault(outputFlagName, defaultOutputDir)
	viper.SetDefault(seedConfigKey, defaultSeed)
	viper.SetDefault(strictConfigKey, false)
	viper.SetDefault(hierarchicalConfigKey, false)
	viper.SetDefault(parallelConfigKey, defaultParallel)
	viper.SetDefault(numTrojansConfigKey, defaultNumTrojans)
	viper.SetDefault(topKConfigKey, defaultTopK)
	viper.SetDefault(modelConfigKey, "")
	viper.SetDefault(sampleRateConfigKey, defaultSampleRate)
	viper.SetDefault(disjointConfigKey, defaultDisjoint)
	viper.SetDefault(counterWidthConfigKey, defaultCounterWidth)

	// Logging defaults (used by config/env and as fallbacks for flags).
	viper.SetDefault(logFilenameKey, defaultLogFilename)
	viper.SetDefault(logLevelKey, defaultLogLevel)
	viper.SetDefault(logVerboseKey, defaultLogVerbose)
	viper.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	viper.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	viper.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	viper.SetDefault(logCompressKey, defaultLogCompress)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return
		}

		return
	}
}

func parseSlogLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	if level == "" {
		return defaultLevel
	}

	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	// Allow numeric slog levels as well (e.g. -4 for debug).
	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}

	return defaultLevel
}

// configureLogger configures the global slog logger.
//
// By default it logs at Info; if verbose is true it logs at Debug.
func configureLogger(logPath string, verbose bool) {
	if strings.TrimSpace(logPath) == "" {
		logPath = viper.GetString(logFilenameKey)
	}

	if strings.TrimSpace(logPath) == "" {
		logPath = defaultLogFilename
	}

	var logLevel slog.Level
	if verbose {
		logLevel = slog.LevelDebug
	} else {
		logLevel = parseSlogLevel(viper.GetString(logLevelKey), slog.LevelInfo)
	}

	logWriter := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    viper.GetInt(logMaxSizeKey),
		MaxBackups: viper.GetInt(logMaxBackupsKey),
		MaxAge:     viper.GetInt(logMaxAgeKey),
		Compress:   viper.GetBool(logCompressKey),
	}

	handler := slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel,
	})

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)
}
