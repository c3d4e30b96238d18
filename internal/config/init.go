package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/temirov/queuesend/internal/utils"
)

// InitTarget identifies where configuration should be initialized.
type InitTarget string

const (
	// InitTargetLocal writes configuration into the working directory.
	InitTargetLocal InitTarget = "local"
	// InitTargetGlobal writes configuration into the global configuration directory.
	InitTargetGlobal InitTarget = "global"

	defaultConfigurationTemplate = `connection:
  protocol: amqp
  host: localhost
  port: 5672
  user: guest
  context_factory: amqp10
  timeout: 30s
bindings:
  connection_factories:
    - name: default
  destinations:
    - name: example
      address: example
`
)

// ErrConfigurationExists is returned when init would overwrite a file without --force.
var ErrConfigurationExists = errors.New("configuration file already exists")

// InitOptions controls how configuration initialization behaves.
type InitOptions struct {
	Target           InitTarget
	Force            bool
	WorkingDirectory string
}

// InitializeConfiguration writes the default configuration to the requested target
// and returns the path written.
func InitializeConfiguration(options InitOptions) (string, error) {
	destinationPath, resolveErr := resolveInitPath(options)
	if resolveErr != nil {
		return "", resolveErr
	}

	if _, statErr := os.Stat(destinationPath); statErr == nil {
		if !options.Force {
			return "", fmt.Errorf("%w at %s (use --force to overwrite)", ErrConfigurationExists, destinationPath)
		}
	} else if !os.IsNotExist(statErr) {
		return "", fmt.Errorf("inspect configuration path %s: %w", destinationPath, statErr)
	}

	if writeErr := os.WriteFile(destinationPath, []byte(defaultConfigurationTemplate), 0o600); writeErr != nil {
		return "", fmt.Errorf("write configuration to %s: %w", destinationPath, writeErr)
	}
	return destinationPath, nil
}

func resolveInitPath(options InitOptions) (string, error) {
	switch options.Target {
	case InitTargetLocal, "":
		workingDirectory := options.WorkingDirectory
		if workingDirectory == "" {
			current, err := os.Getwd()
			if err != nil {
				return "", fmt.Errorf("determine working directory for configuration: %w", err)
			}
			workingDirectory = current
		}
		return filepath.Join(workingDirectory, utils.ConfigFileName), nil
	case InitTargetGlobal:
		homeDirectory, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory for configuration: %w", err)
		}
		configurationDirectory := filepath.Join(homeDirectory, utils.GlobalConfigDirectoryName)
		if err := os.MkdirAll(configurationDirectory, 0o700); err != nil {
			return "", fmt.Errorf("create configuration directory %s: %w", configurationDirectory, err)
		}
		return filepath.Join(configurationDirectory, utils.ConfigFileName), nil
	default:
		return "", fmt.Errorf("unsupported init target %q", options.Target)
	}
}
