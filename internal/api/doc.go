// Package api handles incoming HTTP requests for ad script tasks and user
// accounts. Handlers decode and validate requests, call the service layer and
// render task resources, translating service errors into HTTP status codes.
package api
