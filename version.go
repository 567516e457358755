package moments

// Version is the release of the module, overridden at build time with -ldflags.
var Version = "0.1.0"
