package deflick

import "fmt"

// ConfigError reports an invalid or unsupported option combination.
// It is always surfaced before any batch starts.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + e.Msg
}

func configErrorf(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// DataError reports a missing or malformed input frame, identified by its
// sequence index.
type DataError struct {
	Frame int
	Msg   string
	Cause error
}

func (e *DataError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("frame %d: %s: %v", e.Frame, e.Msg, e.Cause)
	}
	return fmt.Sprintf("frame %d: %s", e.Frame, e.Msg)
}

func (e *DataError) Unwrap() error {
	return e.Cause
}

// ResourceError reports that a batch would exceed the configured memory
// budget. Retrying with identical parameters fails identically, so the
// caller is expected to lower BatchSize and rerun; the checkpoint makes
// that resumption cheap.
type ResourceError struct {
	Batch       int
	NeededBytes int64
	LimitBytes  int64
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("batch %d needs %d bytes of frame memory, limit is %d: lower the batch size and rerun",
		e.Batch, e.NeededBytes, e.LimitBytes)
}

// BatchError wraps any failure that happened while a batch was in flight.
// The last committed batch stays the resume point.
type BatchError struct {
	Batch int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d: %v", e.Batch, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
