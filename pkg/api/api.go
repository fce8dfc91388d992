// Package api holds the HTTP/JSON request and response shapes of a powledger
// node and a typed client for them. The server side lives in internal/api.
package api
