package vector

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/pkg/errors"
)

// Resolution is the unit of a physical time-of-day column.
type Resolution int

const (
	Seconds Resolution = iota
	Millis
	Micros
	Nanos
)

func (r Resolution) String() string {
	switch r {
	case Seconds:
		return "s"
	case Millis:
		return "ms"
	case Micros:
		return "us"
	case Nanos:
		return "ns"
	default:
		return "unknown"
	}
}

// ToMillis converts a raw time-of-day value of resolution res to milliseconds
// since midnight. Narrowing conversions truncate toward zero.
func ToMillis(res Resolution, raw int64) int32 {
	switch res {
	case Seconds:
		return int32(raw * 1000)
	case Millis:
		return int32(raw)
	case Micros:
		return int32(raw / 1000)
	default:
		return int32(raw / 1000000)
	}
}

// TimeVector adapts any of time32[s], time32[ms], time64[us] and time64[ns]
// to millisecond-of-day integers.
type TimeVector struct {
	arr arrow.Array
	res Resolution
	raw func(i int) int64
}

// NewTimeVector resolves the resolution of arr once. It fails with
// ErrUnsupportedVectorType for anything other than the four time encodings.
func NewTimeVector(arr arrow.Array) (*TimeVector, error) {
	switch a := arr.(type) {
	case nil:
		return nil, nullVector("Time")
	case *array.Time32:
		if a == nil {
			return nil, nullVector("Time32")
		}
		v := &TimeVector{arr: a, raw: func(i int) int64 { return int64(a.Value(i)) }}
		switch a.DataType().(*arrow.Time32Type).Unit {
		case arrow.Second:
			v.res = Seconds
		case arrow.Millisecond:
			v.res = Millis
		default:
			return nil, unsupportedTime(a.DataType())
		}
		return v, nil
	case *array.Time64:
		if a == nil {
			return nil, nullVector("Time64")
		}
		v := &TimeVector{arr: a, raw: func(i int) int64 { return int64(a.Value(i)) }}
		switch a.DataType().(*arrow.Time64Type).Unit {
		case arrow.Microsecond:
			v.res = Micros
		case arrow.Nanosecond:
			v.res = Nanos
		default:
			return nil, unsupportedTime(a.DataType())
		}
		return v, nil
	default:
		return nil, unsupportedTime(arr.DataType())
	}
}

func unsupportedTime(dt arrow.DataType) error {
	return errors.Wrapf(ErrUnsupportedVectorType,
		"time vector is of type %s, allowed types are time32[s], time32[ms], time64[us], time64[ns]", dt)
}

// Resolution returns the resolution resolved at construction.
func (v *TimeVector) Resolution() Resolution { return v.res }

// IsNullAt reports whether row i is null.
func (v *TimeVector) IsNullAt(i int) bool { return v.arr.IsNull(i) }

// GetInt returns the value at i in milliseconds since midnight.
func (v *TimeVector) GetInt(i int) int32 {
	return ToMillis(v.res, v.raw(i))
}

// DateVector adapts date32 (days) and date64 (milliseconds) columns to days
// since the epoch.
type DateVector struct {
	arr  arrow.Array
	days func(i int) int32
}

// NewDateVector wraps a date32 or date64 array.
func NewDateVector(arr arrow.Array) (*DateVector, error) {
	switch a := arr.(type) {
	case nil:
		return nil, nullVector("Date")
	case *array.Date32:
		if a == nil {
			return nil, nullVector("Date32")
		}
		return &DateVector{arr: a, days: func(i int) int32 { return int32(a.Value(i)) }}, nil
	case *array.Date64:
		if a == nil {
			return nil, nullVector("Date64")
		}
		return &DateVector{arr: a, days: func(i int) int32 {
			return int32(int64(a.Value(i)) / millisPerDay)
		}}, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedVectorType,
			"date vector is of type %s, allowed types are date32, date64", arr.DataType())
	}
}

const millisPerDay = 24 * 60 * 60 * 1000

// IsNullAt reports whether row i is null.
func (v *DateVector) IsNullAt(i int) bool { return v.arr.IsNull(i) }

// GetInt returns the value at i in days since 1970-01-01.
func (v *DateVector) GetInt(i int) int32 { return v.days(i) }
