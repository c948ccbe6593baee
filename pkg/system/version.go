package system

// Version and Commit are injected at build time via -ldflags.
var (
	Version = "0.0.0-dev"
	Commit  = ""
)
