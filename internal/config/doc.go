// Package config loads service settings from defaults, an optional YAML file
// and PREP_-prefixed environment variables, then validates them before any
// component is constructed.
package config
