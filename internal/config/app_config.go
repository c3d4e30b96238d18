package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/temirov/queuesend/internal/broker"
	"github.com/temirov/queuesend/internal/utils"
)

const environmentKeySeparator = "_"

// environmentKeys lists the configuration keys that can be overridden with
// QUEUESEND_<SECTION>_<KEY> environment variables.
var environmentKeys = []string{
	"connection.protocol",
	"connection.host",
	"connection.port",
	"connection.user",
	"connection.password",
	"connection.context_factory",
	"connection.timeout",
}

// LoadOptions controls how application configuration is discovered.
type LoadOptions struct {
	WorkingDirectory string
	ExplicitFilePath string
	// SkipEnvironment disables QUEUESEND_* overrides.
	SkipEnvironment bool
}

// ApplicationConfiguration holds connection defaults and the naming table.
type ApplicationConfiguration struct {
	Connection ConnectionConfiguration `mapstructure:"connection"`
	Bindings   BindingsConfiguration   `mapstructure:"bindings"`
}

// ConnectionConfiguration holds defaults for the connection flags. Empty
// values and nil pointers mean "not configured".
type ConnectionConfiguration struct {
	Protocol       string `mapstructure:"protocol"`
	Host           string `mapstructure:"host"`
	Port           *int   `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	ContextFactory string `mapstructure:"context_factory"`
	Timeout        string `mapstructure:"timeout"`
}

// BindingsConfiguration is the naming table. Entries are lists so that names
// keep their case.
type BindingsConfiguration struct {
	ConnectionFactories []ConnectionFactoryBinding `mapstructure:"connection_factories"`
	Destinations        []DestinationBinding       `mapstructure:"destinations"`
}

// ConnectionFactoryBinding registers a connection factory name.
type ConnectionFactoryBinding struct {
	Name        string `mapstructure:"name"`
	URL         string `mapstructure:"url"`
	ContainerID string `mapstructure:"container_id"`
	Exchange    string `mapstructure:"exchange"`
}

// DestinationBinding registers a queue name and its physical address.
type DestinationBinding struct {
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"`
}

// LoadApplicationConfiguration loads configuration from global and local files
// and then applies environment overrides.
func LoadApplicationConfiguration(options LoadOptions) (ApplicationConfiguration, error) {
	workingDirectory := options.WorkingDirectory
	if workingDirectory == "" {
		currentDirectory, err := os.Getwd()
		if err != nil {
			return ApplicationConfiguration{}, fmt.Errorf("determine working directory: %w", err)
		}
		workingDirectory = currentDirectory
	}

	var merged ApplicationConfiguration

	if homeDirectory, err := os.UserHomeDir(); err == nil && homeDirectory != "" {
		globalPath := filepath.Join(homeDirectory, utils.GlobalConfigDirectoryName, utils.ConfigFileName)
		globalConfig, loadErr := loadConfigurationFromPath(globalPath)
		if loadErr != nil {
			return ApplicationConfiguration{}, loadErr
		}
		merged = merged.Merge(globalConfig)
	}

	localPath, resolveErr := resolveLocalConfigPath(workingDirectory, options.ExplicitFilePath)
	if resolveErr != nil {
		return ApplicationConfiguration{}, resolveErr
	}
	if options.ExplicitFilePath != "" {
		if _, statErr := os.Stat(localPath); statErr != nil {
			return ApplicationConfiguration{}, fmt.Errorf("configuration file %s: %w", localPath, statErr)
		}
	}
	if localPath != "" {
		localConfig, loadErr := loadConfigurationFromPath(localPath)
		if loadErr != nil {
			return ApplicationConfiguration{}, loadErr
		}
		merged = merged.Merge(localConfig)
	}

	if !options.SkipEnvironment {
		environmentConfig, environmentErr := loadEnvironmentConfiguration()
		if environmentErr != nil {
			return ApplicationConfiguration{}, environmentErr
		}
		merged = merged.Merge(environmentConfig)
	}

	return merged, nil
}

func resolveLocalConfigPath(workingDirectory, explicitPath string) (string, error) {
	if explicitPath != "" {
		if filepath.IsAbs(explicitPath) {
			return explicitPath, nil
		}
		if workingDirectory == "" {
			absolute, err := filepath.Abs(explicitPath)
			if err != nil {
				return "", fmt.Errorf("resolve configuration path %s: %w", explicitPath, err)
			}
			return absolute, nil
		}
		return filepath.Join(workingDirectory, explicitPath), nil
	}
	if workingDirectory == "" {
		return "", nil
	}
	return filepath.Join(workingDirectory, utils.ConfigFileName), nil
}

func loadConfigurationFromPath(path string) (ApplicationConfiguration, error) {
	if path == "" {
		return ApplicationConfiguration{}, nil
	}
	info, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return ApplicationConfiguration{}, nil
		}
		return ApplicationConfiguration{}, fmt.Errorf("stat configuration %s: %w", path, statErr)
	}
	if info.IsDir() {
		return ApplicationConfiguration{}, fmt.Errorf("configuration path %s is a directory", path)
	}

	reader := viper.New()
	reader.SetConfigFile(path)
	if readErr := reader.ReadInConfig(); readErr != nil {
		return ApplicationConfiguration{}, fmt.Errorf("read configuration from %s: %w", path, readErr)
	}
	var config ApplicationConfiguration
	if decodeErr := reader.Unmarshal(&config); decodeErr != nil {
		return ApplicationConfiguration{}, fmt.Errorf("decode configuration from %s: %w", path, decodeErr)
	}
	return config, nil
}

func loadEnvironmentConfiguration() (ApplicationConfiguration, error) {
	reader := viper.New()
	reader.SetEnvPrefix(utils.EnvironmentPrefix)
	reader.SetEnvKeyReplacer(strings.NewReplacer(".", environmentKeySeparator))
	for _, key := range environmentKeys {
		if bindErr := reader.BindEnv(key); bindErr != nil {
			return ApplicationConfiguration{}, fmt.Errorf("bind environment for %s: %w", key, bindErr)
		}
	}
	var config ApplicationConfiguration
	if decodeErr := reader.Unmarshal(&config); decodeErr != nil {
		return ApplicationConfiguration{}, fmt.Errorf("decode environment configuration: %w", decodeErr)
	}
	return config, nil
}

// EnvironmentVariable returns the variable overriding a configuration key.
func EnvironmentVariable(key string) string {
	return utils.EnvironmentPrefix + environmentKeySeparator + strings.ToUpper(strings.ReplaceAll(key, ".", environmentKeySeparator))
}

// Merge overlays override onto the receiver returning the combined configuration.
func (config ApplicationConfiguration) Merge(override ApplicationConfiguration) ApplicationConfiguration {
	result := config
	result.Connection = result.Connection.merge(override.Connection)
	result.Bindings = result.Bindings.merge(override.Bindings)
	return result
}

func (config ConnectionConfiguration) merge(override ConnectionConfiguration) ConnectionConfiguration {
	result := config
	if override.Protocol != "" {
		result.Protocol = override.Protocol
	}
	if override.Host != "" {
		result.Host = override.Host
	}
	if override.Port != nil {
		result.Port = cloneInt(override.Port)
	}
	if override.User != "" {
		result.User = override.User
	}
	if override.Password != "" {
		result.Password = override.Password
	}
	if override.ContextFactory != "" {
		result.ContextFactory = override.ContextFactory
	}
	if override.Timeout != "" {
		result.Timeout = override.Timeout
	}
	return result
}

// merge replaces entries by name and appends new ones, preserving the order
// in which names were first declared.
func (config BindingsConfiguration) merge(override BindingsConfiguration) BindingsConfiguration {
	result := BindingsConfiguration{
		ConnectionFactories: append([]ConnectionFactoryBinding{}, config.ConnectionFactories...),
		Destinations:        append([]DestinationBinding{}, config.Destinations...),
	}
	for _, binding := range override.ConnectionFactories {
		replaced := false
		for index := range result.ConnectionFactories {
			if result.ConnectionFactories[index].Name == binding.Name {
				result.ConnectionFactories[index] = binding
				replaced = true
			}
		}
		if !replaced {
			result.ConnectionFactories = append(result.ConnectionFactories, binding)
		}
	}
	for _, binding := range override.Destinations {
		replaced := false
		for index := range result.Destinations {
			if result.Destinations[index].Name == binding.Name {
				result.Destinations[index] = binding
				replaced = true
			}
		}
		if !replaced {
			result.Destinations = append(result.Destinations, binding)
		}
	}
	return result
}

// NamingTable converts the bindings into the table consulted by naming sessions.
// Entries without a name are ignored.
func (config BindingsConfiguration) NamingTable() broker.Bindings {
	table := broker.Bindings{
		ConnectionFactories: make(map[string]broker.FactoryBinding, len(config.ConnectionFactories)),
		Destinations:        make(map[string]string, len(config.Destinations)),
	}
	for _, binding := range config.ConnectionFactories {
		if binding.Name == "" {
			continue
		}
		table.ConnectionFactories[binding.Name] = broker.FactoryBinding{
			URL:         binding.URL,
			ContainerID: binding.ContainerID,
			Exchange:    binding.Exchange,
		}
	}
	for _, binding := range config.Destinations {
		if binding.Name == "" {
			continue
		}
		table.Destinations[binding.Name] = binding.Address
	}
	return table
}

func cloneInt(value *int) *int {
	if value == nil {
		return nil
	}
	cloned := *value
	return &cloned
}
