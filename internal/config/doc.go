// Package config defines the installer run configuration and provides
// helpers to load, validate and save it in YAML format.
//
// Values are layered with a fixed precedence: built-in defaults, the optional
// settings file, AMBAR_* environment variables, then command-line flags.
// Pipeline components never read the process environment directly; all input
// is resolved here and in the cmd layer before the run starts.
package config
