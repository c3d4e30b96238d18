package utils

// Configuration discovery constants used across the project.
const (
	// ConfigFileName is the name of both the local and the global configuration file.
	ConfigFileName = "config.yaml"
	// GlobalConfigDirectoryName is the directory under the user's home holding the global configuration.
	GlobalConfigDirectoryName = ".queuesend"
	// EnvironmentPrefix prefixes environment variables overriding configuration keys.
	EnvironmentPrefix = "QUEUESEND"
	// GitDirectoryName is consulted when deriving the version from a checkout.
	GitDirectoryName = ".git"
)
