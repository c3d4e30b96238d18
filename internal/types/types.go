// Package types defines the cross-package data structures used by the queuesend CLI.
package types

import (
	"fmt"
	"net"
	"strconv"
)

// Process exit codes.
const (
	ExitCodeSuccess      = 0
	ExitCodeUsageError   = 1
	ExitCodeRuntimeError = 2
)

const providerURLFormat = "%s://%s"

// ConnectionConfig describes where and as whom the naming session is opened.
// It is built once per invocation and never mutated afterwards.
type ConnectionConfig struct {
	Protocol       string
	Host           string
	Port           int
	Principal      string
	Credential     string
	ContextFactory string
}

// ProviderURL renders the connection endpoint as protocol://host:port.
func (config ConnectionConfig) ProviderURL() string {
	return fmt.Sprintf(providerURLFormat, config.Protocol, config.HostPort())
}

// HostPort joins host and port, bracketing IPv6 literals.
func (config ConnectionConfig) HostPort() string {
	return net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
}
