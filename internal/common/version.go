package common

// Version is the application version, overridable at build time via
// -ldflags "-X github.com/ternarybob/darkwatch/internal/common.Version=..."
var Version = "0.1.0-dev"

// Build is the build identifier (commit hash or CI build number)
var Build = "local"
