// Package api provides the HTTP API server for storing, searching and
// maintaining memory items.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8090")
	ListenAddr string
}
