package services

import "errors"

type ErrorCode string

const (
	ErrorInvalid      ErrorCode = "invalid"
	ErrorUnauthorized ErrorCode = "unauthorized"
	ErrorForbidden    ErrorCode = "forbidden"
	ErrorNotFound     ErrorCode = "not_found"
	ErrorConflict     ErrorCode = "conflict"
	ErrorInternal     ErrorCode = "internal"
)

// Reason codes surfaced to callers next to the human message. The HTTP layer
// passes them through untranslated.
const (
	ReasonNotFacilitator   = "NOT_FACILITATOR"
	ReasonNotParticipant   = "NOT_PARTICIPANT"
	ReasonNotInvited       = "NOT_INVITED"
	ReasonAlreadyPending   = "ALREADY_PENDING"
	ReasonAlreadyAccepted  = "ALREADY_ACCEPTED"
	ReasonAlreadyDeclined  = "ALREADY_DECLINED"
	ReasonUserDeclined     = "USER_DECLINED"
	ReasonTrainingFull     = "TRAINING_FULL"
	ReasonAlreadySubmitted = "ALREADY_SUBMITTED"
)

// ServiceError carries the error class, an optional machine reason and a
// human message (user-facing text is Spanish).
type ServiceError struct {
	Code    ErrorCode
	Reason  string
	Message string
}

func (e *ServiceError) Error() string { return e.Message }

func NewInvalidError(msg string) error  { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewNotFoundError(msg string) error { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewConflictError(msg string) error { return &ServiceError{Code: ErrorConflict, Message: msg} }
func NewForbiddenError(msg string) error {
	return &ServiceError{Code: ErrorForbidden, Message: msg}
}
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}
func NewInternalError(msg string) error { return &ServiceError{Code: ErrorInternal, Message: msg} }

func forbiddenReason(reason, msg string) error {
	return &ServiceError{Code: ErrorForbidden, Reason: reason, Message: msg}
}

func conflictReason(reason, msg string) error {
	return &ServiceError{Code: ErrorConflict, Reason: reason, Message: msg}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// ReasonOf extracts the machine reason, or "" for plain errors.
func ReasonOf(err error) string {
	if se, ok := AsServiceError(err); ok {
		return se.Reason
	}
	return ""
}
