// Package config provides user configuration management for lettin.
//
// This package manages a YAML-based configuration file holding discovery
// preferences (broadcast address, ports, collection window, token) and a
// record of every gateway seen, keyed by MAC. The configuration follows
// OS-specific conventions for storage location.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/lettin/config.yaml or $HOME/.config/lettin/config.yaml
//   - macOS: $HOME/.config/lettin/config.yaml
//   - Windows: %LOCALAPPDATA%\lettin\config.yaml
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	session := discovery.NewSession(transport, registry.Preferences.SessionConfig())
//	registry.RecordResult(session.Discover(ctx))
//
//	// Save changes atomically
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Security
//
// The discovery token is a plaintext shared secret, not a credential; it is
// stored as-is. The file is written with user-only permissions.
package config
