// Package configx loads service configuration files with viper.
//
// A configuration is read from property.yaml, or from property-<env>.yaml when the ENVIRONMENT
// variable names a deployed environment (DEV, STAGE or PROD). Environment variables override
// file values: "logging.level" is overridden by LOGGING_LEVEL.
package configx

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/marcodd23/go-dal-core/pkg/errorx"
	"github.com/marcodd23/go-dal-core/pkg/validator"
)

const (
	defaultConfigBaseName = "property"

	// EnvironmentVariable selects the property file to load.
	EnvironmentVariable = "ENVIRONMENT"
)

// LoadConfigForEnv reads the property file of the current environment from the working directory.
func LoadConfigForEnv(config Config) error {
	return LoadConfigFromPathForEnv("", config)
}

// LoadConfigFromPathForEnv reads the property file of the current environment from searchPath
// (for ex. "./config").
func LoadConfigFromPathForEnv(searchPath string, config Config) error {
	return ReadConfiguration(filepath.Join(searchPath, PropertyFileName(os.Getenv(EnvironmentVariable))), config)
}

// PropertyFileName returns "property.yaml" for local environments and "property-<env>.yaml" otherwise.
func PropertyFileName(env string) string {
	if IsLocal(env) {
		return defaultConfigBaseName + ".yaml"
	}

	return defaultConfigBaseName + "-" + strings.ToLower(env) + ".yaml"
}

// ReadConfiguration decodes configFilePath and the environment into config, then validates it.
// A missing file is not an error: the configuration then comes from the environment alone.
func ReadConfiguration(configFilePath string, config Config) error {
	v := NewViper(configFilePath, "")

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errorx.NewConfigurationErrorWrapper(err, "error reading configuration file %s", configFilePath)
	}

	if err := v.Unmarshal(config); err != nil {
		return errorx.NewConfigurationErrorWrapper(err, "unable to decode %s into the configuration", configFilePath)
	}

	if err := validator.NewValidator().Validate(config); err != nil {
		return errorx.NewConfigurationErrorWrapper(err, "invalid configuration %s", configFilePath)
	}

	return nil
}

// NewViper returns a dedicated viper instance bound to configFilePath, with environment overrides
// enabled ("a.b" is overridden by A_B, or PREFIX_A_B when envPrefix is set).
// The config type is inferred from the extension, yaml by default.
func NewViper(configFilePath string, envPrefix string) *viper.Viper {
	v := viper.New()

	v.SetConfigFile(configFilePath)
	if strings.EqualFold(filepath.Ext(configFilePath), ".json") {
		v.SetConfigType("json")
	} else {
		v.SetConfigType("yaml")
	}

	if envPrefix != "" {
		v.SetEnvPrefix(envPrefix)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	return v
}

// IsLocal reports whether env is anything other than DEV, STAGE or PROD.
func IsLocal(env string) bool {
	switch strings.ToUpper(strings.TrimSpace(env)) {
	case "DEV", "STAGE", "PROD":
		return false
	}

	return true
}
