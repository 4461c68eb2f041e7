package timebucket

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// NamePrefix marks clone names produced by EncodeName. Legacy clones were named
// with a bare integer and never decode.
const NamePrefix = "sl"

// ErrInvalidName is returned by DecodeName for names not produced by EncodeName.
var ErrInvalidName = errors.New("invalid clone name")

// Spec identifies one bucket: a width in days and an index counted from Epoch.
type Spec struct {
	WidthDays uint32 `json:"bucket_size"`
	Index     uint32 `json:"time_bucket"`
}

// String returns the canonical clone name.
func (s Spec) String() string {
	return EncodeName(s)
}

// EncodeName renders s as "sl-<width>-<index>".
func EncodeName(s Spec) string {
	return fmt.Sprintf("%s-%d-%d", NamePrefix, s.WidthDays, s.Index)
}

// DecodeName is the inverse of EncodeName.
func DecodeName(name string) (Spec, error) {
	parts := strings.Split(name, "-")
	if len(parts) != 3 {
		return Spec{}, fmt.Errorf("%w %q: expected 3 dash-separated parts, got %d", ErrInvalidName, name, len(parts))
	}
	if parts[0] != NamePrefix {
		return Spec{}, fmt.Errorf("%w %q: prefix must be %q", ErrInvalidName, name, NamePrefix)
	}

	width, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return Spec{}, fmt.Errorf("%w %q: width: %v", ErrInvalidName, name, err)
	}
	if width == 0 {
		return Spec{}, fmt.Errorf("%w %q: width must be positive", ErrInvalidName, name)
	}

	index, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return Spec{}, fmt.Errorf("%w %q: index: %v", ErrInvalidName, name, err)
	}

	spec := Spec{WidthDays: uint32(width), Index: uint32(index)}
	if EncodeName(spec) != name {
		return Spec{}, fmt.Errorf("%w %q: not in canonical form %q", ErrInvalidName, name, EncodeName(spec))
	}
	return spec, nil
}
