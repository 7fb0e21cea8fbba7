package config

import "fmt"

// ValidationError reports a single invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidatePort checks if a port number is valid.
func ValidatePort(field string, port int) error {
	if port < 1 || port > 65535 {
		return &ValidationError{Field: field, Message: "must be between 1 and 65535"}
	}
	return nil
}

// ValidateLogLevel checks if a log level is valid.
func ValidateLogLevel(level string) error {
	switch level {
	case "debug", "info", "warn", "warning", "error", "fatal":
		return nil
	default:
		return &ValidationError{Field: "logging.level", Message: "must be one of: debug, info, warn, error, fatal"}
	}
}

// Validate checks the server section.
func (c *ServerConfig) Validate() error {
	return ValidatePort("server.port", c.Port)
}

// Validate checks the database section for the selected driver.
func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case DriverSQLite:
		if c.Path == "" {
			return &ValidationError{Field: "database.path", Message: "is required for sqlite3"}
		}
		return nil
	case DriverPostgres:
		if c.Host == "" {
			return &ValidationError{Field: "database.host", Message: "is required"}
		}
		if c.Database == "" {
			return &ValidationError{Field: "database.database", Message: "is required"}
		}
		return ValidatePort("database.port", c.Port)
	default:
		return &ValidationError{Field: "database.driver", Message: "must be postgres or sqlite3"}
	}
}
