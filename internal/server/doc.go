// Package server hosts the Fiber HTTP service and its middleware chain: request
// IDs, panic recovery and JSON error rendering. Route groups live in the routes
// sub-package and are attached by the caller, so this package only depends on
// config for the listen port and the shared upstream HTTP client tunings.
package server
