// Package directory aggregates the devices of every registered plugin.
//
// Directory is the metadata cache: a uid → device snapshot rebuilt at most
// once per TTL by fanning ListDevices out to every plugin in parallel. A
// rebuild is all-or-nothing; if any plugin fails, the previous snapshot keeps
// being served.
//
// ScanCache reshapes the current snapshot into a rack → board → device tree.
// Racks and boards exist only through the devices that name them, and appear
// in the order their first device was seen.
package directory
