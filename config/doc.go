// Package config holds the client connection configuration, its
// client-side validation, and its serialization into the connection
// request the engine's create entry point consumes.
package config
