// Package main Raccoon Scanner Portal API
//
// DH key exchange oracle (Raccoon) scanner API
//
//	Schemes: http, https
//	Host: localhost:8000
//	BasePath: /api/v1
//	Version: 1.0.0
//
//	Consumes:
//	- application/json
//
//	Produces:
//	- application/json
//
// swagger:meta
package main

import (
	_ "github.com/swaggo/files"
	_ "github.com/swaggo/gin-swagger"
)

// swagger:model ScanRequest
type SwaggerScanRequest struct {
	// The target hostname or IP to scan
	// required: true
	// example: example.com
	Target string `json:"target"`
	// Priority level (1-10, higher is more urgent)
	// example: 5
	Priority int `json:"priority,omitempty"`
	// Free-form note stored with the scan
	// example: quarterly audit
	Comments string `json:"comments,omitempty"`
}

// swagger:model ScanResponse
type SwaggerScanResponse struct {
	// Unique scan identifier
	// example: 550e8400-e29b-41d4-a716-446655440000
	ID string `json:"id"`
	// Current status of the scan
	// example: queued
	Status string `json:"status"`
	// Position in queue (if queued)
	// example: 3
	QueuePos int `json:"queue_position,omitempty"`
	// Status message
	// example: Scan has been queued
	Message string `json:"message"`
	// Creation timestamp
	Created string `json:"created"`
}

// swagger:model ErrorResponse
type SwaggerErrorResponse struct {
	// Error message
	// example: Invalid target
	Error string `json:"error"`
}

// swagger:model HealthResponse
type SwaggerHealthResponse struct {
	// Service status
	// example: healthy
	Status string `json:"status"`
	// Database status (only on error)
	// example: down
	Database string `json:"database,omitempty"`
	// Redis status (only on error)
	// example: down
	Redis string `json:"redis,omitempty"`
}

// swagger:model ScanResult
type SwaggerScanResult struct {
	// Scan ID
	ID string `json:"id"`
	// Scan status
	Status string `json:"status"`
	// Oracle verdict (TRUE, FALSE, ERROR, COULD_NOT_TEST)
	Verdict string `json:"verdict,omitempty"`
	// Whether the server offered finite-field DH cipher suites
	SupportsDH bool `json:"supports_dh"`
	// Certificate details
	CertificateIssuer  string `json:"certificate_issuer,omitempty"`
	CertificateKeyType string `json:"certificate_key_type,omitempty"`
	CertificateKeySize int    `json:"certificate_key_size,omitempty"`
	// Tested version/suite/workflow combinations
	Combinations []map[string]interface{} `json:"combinations,omitempty"`
	// Full scan result
	Result interface{} `json:"result,omitempty"`
}

// swagger:parameters createScan
type SwaggerCreateScanParams struct {
	// in: body
	// required: true
	Body SwaggerScanRequest `json:"body"`
}

// swagger:parameters getScan streamScan
type SwaggerGetScanParams struct {
	// Scan ID
	// in: path
	// required: true
	// example: 550e8400-e29b-41d4-a716-446655440000
	ID string `json:"id"`
}

// swagger:response scanResponse
type SwaggerScanResponseWrapper struct {
	// in: body
	Body SwaggerScanResponse
}

// swagger:response scanResult
type SwaggerScanResultWrapper struct {
	// in: body
	Body SwaggerScanResult
}

// swagger:response errorResponse
type SwaggerErrorResponseWrapper struct {
	// in: body
	Body SwaggerErrorResponse
}

// swagger:response healthResponse
type SwaggerHealthResponseWrapper struct {
	// in: body
	Body SwaggerHealthResponse
}

// swagger:route POST /scans scans createScan
//
// Submit a new scan
//
// Submit a target hostname or IP address for DH oracle scanning.
//
//	Consumes:
//	- application/json
//
//	Produces:
//	- application/json
//
//	Schemes: http, https
//
//	Responses:
//	  202: scanResponse
//	  400: errorResponse
//	  500: errorResponse

// swagger:route GET /scans/{id} scans getScan
//
// Get scan result
//
// Retrieve the result of a specific scan by its ID.
//
//	Produces:
//	- application/json
//
//	Schemes: http, https
//
//	Responses:
//	  200: scanResult
//	  404: errorResponse
//	  500: errorResponse

// swagger:route GET /scans scans listScans
//
// List all scans
//
// Get a list of all scans with their status and verdicts.
//
//	Produces:
//	- application/json
//
//	Schemes: http, https
//
//	Responses:
//	  200: body:map[string]interface{}
//	  500: errorResponse

// swagger:route GET /health health healthCheck
//
// Health check
//
// Check if the API and its dependencies are healthy.
//
//	Produces:
//	- application/json
//
//	Schemes: http, https
//
//	Responses:
//	  200: healthResponse
//	  503: healthResponse

// swagger:route GET /scans/{id}/stream websocket streamScan
//
// WebSocket stream
//
// Connect to WebSocket for real-time scan updates.
//
//	Schemes: ws, wss
//
//	Responses:
//	  101: body:string
