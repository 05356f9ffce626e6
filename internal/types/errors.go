package types

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrProjectNotFound    = errors.New("project not found")
	ErrDuplicateUUID      = errors.New("duplicate uuid")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrInvalidHierarchy   = errors.New("invalid hierarchy")
	ErrLockContention     = errors.New("lock contention")
	ErrProjectNotLocked   = errors.New("project not locked")
)

// APIError is an ec5 error payload with the HTTP status it is sent with.
type APIError struct {
	Status int    `json:"-"`
	Code   string `json:"code"`
	Title  string `json:"title"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d: %s [code: %s]", e.Status, e.Title, e.Code)
}

// Literal ec5 payloads. Codes and titles are part of the public contract.
var (
	APIMissingData  = &APIError{Status: 400, Code: "ec5_269", Title: "Missing 'data' key in structure"}
	APIBadRequest   = &APIError{Status: 400, Code: "ec5_62", Title: "Request body is not valid."}
	APINotLocked    = &APIError{Status: 400, Code: "ec5_91", Title: "Sorry, you cannot perform this operation."}
	APITooMany      = &APIError{Status: 400, Code: "ec5_255", Title: "Too many requests have been made. Please try again later."}
	APINoProject    = &APIError{Status: 404, Code: "ec5_11", Title: "Project does not exist."}
	APINoEntry      = &APIError{Status: 404, Code: "ec5_239", Title: "Entry does not exist."}
	APIDuplicate    = &APIError{Status: 400, Code: "ec5_59", Title: "Entry already exists."}
	APIHierarchy    = &APIError{Status: 400, Code: "ec5_84", Title: "Parent entry is not valid for this form."}
	APIOutOfStep    = &APIError{Status: 400, Code: "ec5_116", Title: "Entry counts are out of step with this change."}
	APIUnauthorized = &APIError{Status: 403, Code: "ec5_77", Title: "You need to be logged in to perform this operation."}
	APIInternal     = &APIError{Status: 500, Code: "ec5_104", Title: "Something went wrong, please try again."}
)

// Success codes.
const (
	CodeEntryChanged   = "ec5_236"
	CodeChunkEntries   = "ec5_400"
	CodeChunkMedia     = "ec5_407"
	CodeEntryUploaded  = "ec5_237"
	TitleEntryArchived = "Entry successfully archived"
	TitleEntryDeleted  = "Entry successfully deleted"
	TitleEntryUploaded = "Entry successfully uploaded."
	TitleChunkEntries  = "Chunk entries deleted successfully."
	TitleChunkMedia    = "Chunk media deleted successfully."
)

// FromError maps a domain error to its ec5 payload. Unknown errors become
// APIInternal.
func FromError(err error) *APIError {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, ErrProjectNotFound):
		return APINoProject
	case errors.Is(err, ErrNotFound):
		return APINoEntry
	case errors.Is(err, ErrDuplicateUUID):
		return APIDuplicate
	case errors.Is(err, ErrInvalidHierarchy):
		return APIHierarchy
	case errors.Is(err, ErrInvariantViolation):
		return APIOutOfStep
	case errors.Is(err, ErrLockContention):
		return APITooMany
	case errors.Is(err, ErrProjectNotLocked):
		return APINotLocked
	default:
		return APIInternal
	}
}
