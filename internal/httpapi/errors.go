package httpapi

import "errors"

// errNotConfigured is returned when a handler's backing collaborator was
// never wired (e.g. no Postgres DSN configured for a read-only deployment).
var errNotConfigured = errors.New("httpapi: component not configured")

// errMissingRequiredFields is returned when a request body omits a field
// the underlying operation treats as mandatory.
var errMissingRequiredFields = errors.New("httpapi: missing required fields")

// errSessionNotFound is returned when a telemetry lookup finds no row.
var errSessionNotFound = errors.New("httpapi: session not found")
