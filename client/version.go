package client

// Version of the coreperf client.
// This variable can be overridden at build time using:
//
//	go build -ldflags "-X github.com/coreperf-io/coreperf/client.Version=v1.0.0"
var Version = "dev"
