package purchase

import (
	"errors"
	"fmt"
)

// Code classifies a purchase failure.
type Code string

// Purchase failure codes.
const (
	CodeInvalidInput         Code = "INVALID_INPUT"
	CodeUserNotFound         Code = "USER_NOT_FOUND"
	CodeEpisodeNotFound      Code = "EPISODE_NOT_FOUND"
	CodeNovelNotFound        Code = "NOVEL_NOT_FOUND"
	CodeEpisodeNovelMismatch Code = "EPISODE_NOVEL_MISMATCH"
	CodeEpisodeNotAvailable  Code = "EPISODE_NOT_AVAILABLE"
	CodeNotPurchasable       Code = "NOT_PURCHASABLE"
	CodeAlreadyOwned         Code = "ALREADY_OWNED"
	CodeInsufficientFunds    Code = "INSUFFICIENT_FUNDS"
	CodeInProgress           Code = "PURCHASE_IN_PROGRESS"
	CodeInternal             Code = "INTERNAL_ERROR"
)

// Error is a purchase failure with a machine-readable code.
type Error struct {
	Code    Code
	Message string
	Details map[string]interface{}
	Stage   Stage
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(code Code, message string, details map[string]interface{}) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

func internalError(err error) *Error {
	return &Error{Code: CodeInternal, Message: "Purchase could not be completed", cause: err}
}

// CodeOf returns the code of a purchase error, or CodeInternal for any other error.
func CodeOf(err error) Code {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Code
	}
	return CodeInternal
}
