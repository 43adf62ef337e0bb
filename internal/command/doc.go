// Package command routes device and transaction commands to plugins.
//
// The Router is the only component that turns a device reference
// (rack, board, uid) or a transaction ID into a call on a live plugin client.
// It performs no retries. Every failure is returned as a *Error carrying a
// stable Kind; the only failure it swallows is being unable to cache a
// transaction ID after a write the plugin already accepted.
//
// Usage:
//
//	router := command.NewRouter(registry, dir, scan, txns)
//	router.SetLogger(log)
//	result, err := router.Read(ctx, "rack-1", "board-1", "dev-1")
//	if errors.Is(err, command.ErrDeviceNotFound) {
//	    // 404
//	}
package command
