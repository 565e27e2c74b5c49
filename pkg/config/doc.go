// Package config loads the YAML application declaration, validates it, and
// translates it into the resource graph.
//
// Loading is strict: unknown fields, missing required fields, and malformed
// templates fail at load time with configuration errors. The package can
// also watch a configuration file and hand freshly validated declarations to
// a reload callback, debouncing editor write bursts.
package config
