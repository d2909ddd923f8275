package config

const (
	defaultDataDir            = "~/.autocron"
	defaultDatabaseFile       = "autocron.db"
	defaultLogDir             = "~/.autocron/logs"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultWorkerGraceSeconds = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		DataDir:            defaultDataDir,
		DatabaseFile:       defaultDatabaseFile,
		LogDir:             defaultLogDir,
		LogLevel:           defaultLogLevel,
		LogFormat:          defaultLogFormat,
		WorkerGraceSeconds: defaultWorkerGraceSeconds,
	}
}
