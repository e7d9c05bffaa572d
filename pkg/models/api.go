// pkg/models/api.go
package models

// Laravel-style validation error response
type ValidationErrorResponse struct {
	Success bool                `json:"success" example:"false"`
	Message string              `json:"message" example:"Validation failed"`
	Errors  map[string][]string `json:"errors"`
}

// Generic error response (403/404/409/500)
type ErrorResponse struct {
	Success bool   `json:"success" example:"false"`
	Error   bool   `json:"error" example:"true"`
	Message string `json:"message" example:"Forbidden"`
	Code    string `json:"code,omitempty" example:"FORBIDDEN"`
}

// Envelope wraps every successful payload.
type Envelope struct {
	Success bool `json:"success" example:"true"`
	Data    any  `json:"data"`
}

// Page is the paginated list shape.
type Page struct {
	Success  bool  `json:"success"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
	Pages    int   `json:"pages"`
	Count    int   `json:"count"`
	Data     any   `json:"data"`
}
