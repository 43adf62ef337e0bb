// Package plugin manages the backend processes that own devices.
//
// A plugin is reached over JSON/HTTP on TCP or a unix socket and is known by
// the composite identity "<name>+<mode>@<address>". The Registry holds the
// live set and keeps it in step with what the configured discovery strategies
// report:
//
//   - StaticDiscoverer: addresses from configuration
//   - SocketDirDiscoverer: every unix socket in a directory
//   - ClusterDiscoverer: a cluster endpoints API filtered by label selector
//   - AnnouncementDiscoverer: addresses plugins announce on MQTT
//
// A discovery pass probes only addresses it has not seen before, so clients
// of surviving plugins are reused across passes. Plugins that stop being
// reported are purged and their clients closed.
//
// Usage:
//
//	static, _ := plugin.NewStaticDiscoverer(cfg.Plugins.TCP)
//	reg := plugin.NewRegistry(plugin.NewHTTPClientFactory(cfg.Plugins.Timeout), static)
//	reg.SetLogger(log)
//	if err := reg.Discover(ctx); err != nil {
//	    return err
//	}
package plugin
