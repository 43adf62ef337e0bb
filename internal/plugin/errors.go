package plugin

import "errors"

// Domain errors for the plugin package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, plugin.ErrPluginNotFound) {
//	    // handle not found case
//	}
var (
	// ErrAlreadyRegistered is returned when adding a plugin whose identity is already tracked.
	ErrAlreadyRegistered = errors.New("plugin: already registered")

	// ErrPluginNotFound is returned when an identity or owner name is not registered.
	ErrPluginNotFound = errors.New("plugin: not found")

	// ErrPluginState is returned when a plugin is missing its name or client.
	ErrPluginState = errors.New("plugin: invalid state")

	// ErrTransport is returned when an RPC to a plugin fails or times out.
	ErrTransport = errors.New("plugin: transport failure")

	// ErrInvalidAddress is returned when a discovered address cannot be dialled.
	ErrInvalidAddress = errors.New("plugin: invalid address")

	// ErrDiscovery is returned when a discovery strategy cannot produce addresses.
	ErrDiscovery = errors.New("plugin: discovery failed")
)
