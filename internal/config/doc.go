// Package config loads the proofmeshd configuration file. JSON and YAML are
// both accepted; the format is chosen by file extension. Relative paths in
// the file are resolved against the file's directory.
package config
