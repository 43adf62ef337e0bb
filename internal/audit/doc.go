// Package audit keeps the trail of device writes accepted by plugins.
//
// Every successful write routed by the gateway is stored in the SQLite
// audit_logs table with its target device, owning plugin, request body and
// the transaction ids the plugin returned. Entries are listed newest first.
package audit
