package api

const (
	// Pagination defaults
	DefaultLimit = 50
	MaxLimit     = 500

	// Query Parameters
	ParamStatus = "status"
	ParamLimit  = "limit"
	ParamID     = "id"
	ParamToken  = "token"

	// Headers
	HeaderAPIKey      = "X-API-Key"
	HeaderContentType = "Content-Type"
	MimeJSON          = "application/json"
)
