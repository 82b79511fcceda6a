// Package api adapts HTTP requests to the generation service. Handlers decode
// the request body, take the requester identity from the auth middleware and
// translate the service's classified errors into status codes and the JSON
// failure envelope.
package api
