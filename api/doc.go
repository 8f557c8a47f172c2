// Package api defines the request and response payloads of the AgentOS
// Studio HTTP API.
//
// # API Overview
//
// AgentOS Studio exposes a RESTful API for:
//   - Creating and editing workflow graphs (nodes, edges, positions)
//   - Validating connections and asking for next-node suggestions
//   - Running workflows and browsing their execution records
//   - Instantiating built-in templates and importing/exporting definitions
//   - Streaming run and node events over a WebSocket
//
// # Authentication
//
// When API keys are configured every /api/v1 endpoint requires one:
//
//	X-API-Key: your-api-key
//
// A JWT bearer token is accepted instead when a JWT secret is configured.
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
package api
