package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a thingbot error code.
type ErrorCode string

const (
	ErrMissingToken   ErrorCode = "MISSING_TOKEN"   // fatal at startup
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // bad caller input
	ErrInvalidThing   ErrorCode = "INVALID_THING"   // unknown Thingiverse identifier
	ErrDownloadFailed ErrorCode = "DOWNLOAD_FAILED" // fetching a model failed
	ErrRenderFailed   ErrorCode = "RENDER_FAILED"   // OpenSCAD or image post-processing failed
	ErrUploadFailed   ErrorCode = "UPLOAD_FAILED"   // posting a preview to Slack failed
	ErrInternal       ErrorCode = "INTERNAL"
)

// BotError represents a structured error with code, message and details.
type BotError struct {
	Code    ErrorCode
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *BotError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *BotError) Unwrap() error {
	return e.Err
}

// NewMissingToken creates an error for a required environment variable that is unset.
func NewMissingToken(envVar string) *BotError {
	return &BotError{
		Code:    ErrMissingToken,
		Message: fmt.Sprintf("no value was provided in the env, please set %s", envVar),
		Details: map[string]any{"env": envVar},
	}
}

// NewInvalidRequest creates an error for invalid caller input.
func NewInvalidRequest(msg string) *BotError {
	return &BotError{
		Code:    ErrInvalidRequest,
		Message: msg,
	}
}

// NewInvalidThing creates an error for an identifier Thingiverse does not know.
func NewInvalidThing(thingID string) *BotError {
	return &BotError{
		Code:    ErrInvalidThing,
		Message: fmt.Sprintf("not a valid thing: %s", thingID),
		Details: map[string]any{"thing_id": thingID},
	}
}

// NewDownloadFailed creates an error for a failed model download.
func NewDownloadFailed(name string, err error) *BotError {
	return &BotError{
		Code:    ErrDownloadFailed,
		Message: fmt.Sprintf("failed to download %s", name),
		Details: map[string]any{"name": name},
		Err:     err,
	}
}

// NewRenderFailed creates an error for a model that could not be rendered.
// output is the renderer's combined output and may be empty.
func NewRenderFailed(model string, output string, err error) *BotError {
	details := map[string]any{"model": model}
	if output != "" {
		details["output"] = output
	}
	return &BotError{
		Code:    ErrRenderFailed,
		Message: fmt.Sprintf("failed to render %s", model),
		Details: details,
		Err:     err,
	}
}

// NewUploadFailed creates an error for a preview that could not be posted.
func NewUploadFailed(name string, err error) *BotError {
	return &BotError{
		Code:    ErrUploadFailed,
		Message: fmt.Sprintf("failed to upload %s", name),
		Details: map[string]any{"name": name},
		Err:     err,
	}
}

// NewInternal creates an error for unexpected internal failures.
func NewInternal(err error) *BotError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &BotError{
		Code:    ErrInternal,
		Message: msg,
		Err:     err,
	}
}

// Is checks if err, or anything it wraps, is a BotError with the given code.
func Is(err error, code ErrorCode) bool {
	var bErr *BotError
	if stderrors.As(err, &bErr) {
		return bErr.Code == code
	}
	return false
}

// CodeOf returns the code of the first BotError in err's chain, or ErrInternal.
func CodeOf(err error) ErrorCode {
	var bErr *BotError
	if stderrors.As(err, &bErr) {
		return bErr.Code
	}
	return ErrInternal
}

// UserMessage returns the text shown in chat for err.
// Internal details (paths, tool output, HTTP errors) are never included.
func UserMessage(err error) string {
	var bErr *BotError
	if !stderrors.As(err, &bErr) {
		return "something went wrong, check the bot logs"
	}
	switch bErr.Code {
	case ErrInvalidThing:
		return "this is not a valid thing!"
	case ErrInvalidRequest:
		return bErr.Message
	case ErrDownloadFailed:
		return fmt.Sprintf("could not download %v", bErr.Details["name"])
	case ErrRenderFailed:
		return fmt.Sprintf("could not render %v", bErr.Details["model"])
	case ErrUploadFailed:
		return fmt.Sprintf("could not upload %v", bErr.Details["name"])
	default:
		return "something went wrong, check the bot logs"
	}
}
