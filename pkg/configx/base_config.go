package configx

// Config is what the data access layer reads from a service configuration.
type Config interface {
	GetServiceName() string
	GetVersion() string
	GetEnvironment() string
	GetGcpConfig() *GcpConfig
	GetLoggingConfig() *LoggingConfig
	GetSpecificationsPath() string
	IsLocalEnvironment() bool
}

// BaseConfig is the configuration shared by every service using the data access layer.
// Services embed it with `mapstructure:",squash"` and add their own sections:
/*
name: "dalctl"
environment: "development"
version: "1.0"
logging:
  level: "debug"
specifications: "./config/specifications.yaml"
gcp:
  projectNumber: 620222630834
  project: test-project
  location: europe-west4
*/
type BaseConfig struct {
	Name           string         `mapstructure:"name"`
	Environment    string         `mapstructure:"environment"`
	Version        string         `mapstructure:"version"`
	Logging        *LoggingConfig `mapstructure:"logging" validate:"omitempty"`
	Specifications string         `mapstructure:"specifications"`
	Gcp            *GcpConfig     `mapstructure:"gcp"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`
}

// GcpConfig locates the project hosting the change relay topics.
type GcpConfig struct {
	ProjectId     string `mapstructure:"project"`
	ProjectNumber string `mapstructure:"projectNumber"`
	Location      string `mapstructure:"location"`
}

func (cfg BaseConfig) GetServiceName() string { return cfg.Name }

func (cfg BaseConfig) GetVersion() string { return cfg.Version }

func (cfg BaseConfig) GetEnvironment() string { return cfg.Environment }

func (cfg BaseConfig) IsLocalEnvironment() bool {
	return IsLocal(cfg.Environment)
}

// GetSpecificationsPath is the path of the database and query specification file, empty when
// the service registers its specifications in code.
func (cfg BaseConfig) GetSpecificationsPath() string { return cfg.Specifications }

// GetGcpConfig never returns nil.
func (cfg BaseConfig) GetGcpConfig() *GcpConfig {
	if cfg.Gcp == nil {
		return &GcpConfig{}
	}

	return cfg.Gcp
}

func (cfg BaseConfig) GetLoggingConfig() *LoggingConfig {
	return cfg.Logging
}
