package predict

import "fmt"

const (
	MissingImageURLMessage = "Missing 'image_url' in request body"
	InternalErrorMessage   = "An internal server error occurred."
	downloadFailedPrefix   = "Failed to download image from URL: "
)

// InputError is a malformed or incomplete request.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string {
	return e.Msg
}

// AcquisitionError wraps a download or decode failure. Its message is safe to
// return to the caller.
type AcquisitionError struct {
	Err error
}

func (e *AcquisitionError) Error() string {
	return downloadFailedPrefix + e.Err.Error()
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// InternalError hides the failing stage and cause behind a generic message.
type InternalError struct {
	Stage Stage
	Err   error
}

func (e *InternalError) Error() string {
	return InternalErrorMessage
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Detail is the full cause, for logs only.
func (e *InternalError) Detail() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}
