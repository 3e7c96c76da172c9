package backend

import (
	"fmt"

	"gastos/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	local := LocalType(appConfig.LocalBackend)
	if !local.IsValid() {
		return Config{}, fmt.Errorf("invalid local backend in config: %s", appConfig.LocalBackend)
	}
	remoteType := RemoteType(appConfig.RemoteBackend)
	if !remoteType.IsValid() {
		return Config{}, fmt.Errorf("invalid remote backend in config: %s", appConfig.RemoteBackend)
	}

	return Config{
		Local:  local,
		Remote: remoteType,

		SQLiteDBPath: appConfig.SQLiteDBPath,
		DataFile:     appConfig.DataFile,
		ReplayQueue:  appConfig.ReplayEnabled(),

		RemoteCollection: appConfig.RemoteCollection,
		RemoteDocument:   appConfig.RemoteDocument,
		RemoteTimeout:    appConfig.RemoteTimeout,

		RedisAddr:     appConfig.RedisAddr,
		RedisPassword: appConfig.RedisPassword,
		RedisDB:       appConfig.RedisDB,

		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleSheetName:          appConfig.GoogleSheetName,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,
		SheetsPollInterval:       appConfig.SheetsPollInterval,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Local.IsValid() {
		return fmt.Errorf("invalid local backend: %s", c.Local)
	}
	if !c.Remote.IsValid() {
		return fmt.Errorf("invalid remote backend: %s", c.Remote)
	}
	if c.needsSQLite() && c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required for sqlite backend or queued replay")
	}
	if c.Local == LocalFile && c.DataFile == "" {
		return fmt.Errorf("data file is required for file backend")
	}

	switch c.Remote {
	case RemoteRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis address is required for redis backend")
		}
	case RemoteSheets:
		if c.GoogleSpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets backend")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			return fmt.Errorf("either GoogleServiceAccountJSON or GoogleServiceAccountFile must be provided for sheets backend")
		}
	}
	return nil
}

func (c Config) needsSQLite() bool {
	return c.Local == LocalSQLite || (c.ReplayQueue && c.Remote != RemoteNone)
}
