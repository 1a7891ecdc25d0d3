package app

import "fmt"

// DomainError is an operation failure that already knows how it should look
// to the browser. The service layer builds these at the point of failure;
// writeMappedError unwraps them at the edge so no handler switches on error
// values itself. Anything that is not a DomainError surfaces as a generic
// 500 without leaking upstream detail.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}
