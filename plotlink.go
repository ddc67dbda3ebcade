package plotlink

// Version is the release of the plotlink module. Release builds override it
// with -ldflags "-X github.com/aretw0/plotlink.Version=...".
var Version = "0.1.0-dev"
