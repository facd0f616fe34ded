package config

// Version is the kpfed binary version.
// Set at build time via: -ldflags "-X github.com/persistorai/kpfed/internal/config.Version=<tag>"
var Version = "dev"
