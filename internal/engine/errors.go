package engine

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

const (
	CodeMissingKey           = "MISSING_KEY"
	CodeInvalidKeyType       = "INVALID_KEY_TYPE"
	CodeUnknownRelatedStore  = "UNKNOWN_RELATED_STORE"
	CodeMissingCondition     = "MISSING_CONDITION"
	CodeEmptyCondition       = "EMPTY_CONDITION"
	CodeUnsupportedFieldKind = "UNSUPPORTED_FIELD_KIND"
	CodeNilRangeBound        = "NIL_RANGE_BOUND"
	CodeInvalidCondition     = "INVALID_CONDITION"
	CodeInvalidSchema        = "INVALID_SCHEMA"
	CodeDuplicateStore       = "DUPLICATE_STORE"
	CodeUnknownEntity        = "UNKNOWN_ENTITY"
	CodeNotFound             = "NOT_FOUND"
	CodeInvalidPayload       = "INVALID_PAYLOAD"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

// HasCode reports whether err, or any error it wraps, is an AppError with
// the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

func MissingKeyError(entity, key string) *AppError {
	return &AppError{
		Code:    CodeMissingKey,
		Status:  422,
		Message: fmt.Sprintf("%s: record must have the unique key %q", entity, key),
	}
}

func InvalidKeyTypeError(entity, key string, value any) *AppError {
	return &AppError{
		Code:    CodeInvalidKeyType,
		Status:  422,
		Message: fmt.Sprintf("%s: %q must be a string or number, got %T", entity, key, value),
	}
}

func UnknownRelatedStoreError(entity, target string) *AppError {
	return &AppError{
		Code:    CodeUnknownRelatedStore,
		Status:  500,
		Message: fmt.Sprintf("%s: related store %q is not registered", entity, target),
	}
}

func MissingConditionError() *AppError {
	return &AppError{
		Code:    CodeMissingCondition,
		Status:  400,
		Message: `"where" condition is required`,
	}
}

func EmptyConditionError() *AppError {
	return &AppError{
		Code:    CodeEmptyCondition,
		Status:  400,
		Message: `"where" condition must have at least 1 field`,
	}
}

func UnsupportedFieldKindError(field string, kind any) *AppError {
	return &AppError{
		Code:    CodeUnsupportedFieldKind,
		Status:  400,
		Message: fmt.Sprintf("cannot filter on %q (%v): only number, boolean, string and date fields are supported", field, kind),
	}
}

func NilRangeBoundError(op string) *AppError {
	return &AppError{
		Code:    CodeNilRangeBound,
		Status:  400,
		Message: fmt.Sprintf("%q condition can't contain a nil bound", op),
	}
}

func InvalidConditionError(field, op, msg string) *AppError {
	return &AppError{
		Code:    CodeInvalidCondition,
		Status:  400,
		Message: fmt.Sprintf("invalid %q condition on %s: %s", op, field, msg),
	}
}

func InvalidSchemaError(err error) *AppError {
	return &AppError{
		Code:    CodeInvalidSchema,
		Status:  422,
		Message: fmt.Sprintf("invalid schema: %v", err),
	}
}

func DuplicateStoreError(name string) *AppError {
	return &AppError{
		Code:    CodeDuplicateStore,
		Status:  409,
		Message: fmt.Sprintf("a store named %q is already registered", name),
	}
}

func UnknownEntityError(name string) *AppError {
	return &AppError{
		Code:    CodeUnknownEntity,
		Status:  404,
		Message: fmt.Sprintf("Unknown entity: %s", name),
	}
}

func NotFoundError(entity, id string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s with id %s not found", entity, id),
	}
}

func InvalidPayloadError(msg string) *AppError {
	return &AppError{
		Code:    CodeInvalidPayload,
		Status:  400,
		Message: msg,
	}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Status:  401,
		Message: msg,
	}
}

func ForbiddenError(msg string) *AppError {
	return &AppError{
		Code:    CodeForbidden,
		Status:  403,
		Message: msg,
	}
}
