// Package handlers holds the inbound HTTP handlers: the S3 and key-value
// dispatcher, which runs one Action per request, and the health checks.
package handlers
