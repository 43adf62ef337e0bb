// Package process supervises plugin processes started by the gateway.
//
// A Manager runs one subprocess in its own process group, logs its output
// line by line and restarts it with exponential backoff when it exits
// unexpectedly. An optional health check kills a process that stops
// answering. A Supervisor builds one Manager per plugins.managed entry and
// reports start and exit events so plugin discovery can react.
//
// Example usage:
//
//	sup, err := process.NewSupervisor(cfg.Plugins.Managed, nil)
//	if err != nil {
//	    return err
//	}
//	if err := sup.Start(ctx); err != nil {
//	    log.Warn("some managed plugins failed to start", "error", err)
//	}
//	defer sup.Stop()
package process
