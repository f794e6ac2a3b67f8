package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrConfigInvalid       = NewDomainError("CONFIG_INVALID", "No usable source configuration for jurisdiction")
	ErrSourceUnavailable   = NewDomainError("SOURCE_UNAVAILABLE", "Upstream source is unavailable")
	ErrValidationRejected  = NewDomainError("VALIDATION_REJECTED", "Record rejected by validation")
	ErrStorageFailure      = NewDomainError("STORAGE_FAILURE", "Analytical store write failed")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
)
