package config

// Version is the release of the mtfbacktest binaries.
const Version = "0.3.0"

// GetVersion returns the current version
func GetVersion() string {
	return Version
}
