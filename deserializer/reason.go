package deserializer

import (
	"github.com/pkg/errors"

	"github.com/VanDung-dev/ArrowRow-Engine/data"
	"github.com/VanDung-dev/ArrowRow-Engine/data/vector"
)

// decodeError marks a failure of the IPC reader itself, as opposed to the
// conversion of a decoded batch.
type decodeError struct {
	cause error
}

func (e *decodeError) Error() string { return "IPC decode failed: " + e.cause.Error() }

func (e *decodeError) Unwrap() error { return e.cause }

// Failure reasons reported to Metrics.
const (
	reasonEmpty       = "empty_message"
	reasonDecode      = "decode"
	reasonSchema      = "schema_mismatch"
	reasonVectorType  = "unsupported_vector_type"
	reasonNullVector  = "null_vector"
	reasonLogicalType = "unsupported_logical_type"
	reasonOther       = "other"
)

// FailureReason classifies err into a short label for metrics and logs.
func FailureReason(err error) string {
	var de *decodeError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyMessage):
		return reasonEmpty
	case errors.Is(err, data.ErrSchemaMismatch):
		return reasonSchema
	case errors.Is(err, vector.ErrUnsupportedVectorType):
		return reasonVectorType
	case errors.Is(err, vector.ErrNullVector):
		return reasonNullVector
	case errors.Is(err, data.ErrUnsupportedLogicalType):
		return reasonLogicalType
	case errors.As(err, &de), errors.Is(err, data.ErrEmptyInput):
		return reasonDecode
	default:
		return reasonOther
	}
}
