package version

// Version is injected at build time via -ldflags.
var Version = "dev"

// Commit is the git revision injected at build time.
var Commit = "unknown"

// BuildDate is the build timestamp injected at build time.
var BuildDate = "unknown"
