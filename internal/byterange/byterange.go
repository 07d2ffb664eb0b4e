package byterange

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedRange is returned when a byte-range string is not of the form "<start>-<end>".
var ErrMalformedRange = errors.New("malformed byte range")

// Parse splits an inclusive HTTP byte range such as "100-131" into its bounds.
func Parse(s string) (start, end uint64, err error) {
	startStr, endStr, found := strings.Cut(s, "-")
	if !found {
		return 0, 0, fmt.Errorf("%w: missing separator in '%s'", ErrMalformedRange, s)
	}

	start, err = strconv.ParseUint(strings.TrimSpace(startStr), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid start in '%s': %v", ErrMalformedRange, s, err)
	}
	end, err = strconv.ParseUint(strings.TrimSpace(endStr), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid end in '%s': %v", ErrMalformedRange, s, err)
	}
	if end < start {
		return 0, 0, fmt.Errorf("%w: end before start in '%s'", ErrMalformedRange, s)
	}

	return start, end, nil
}

// Format renders an inclusive range.
func Format(start, end uint64) string {
	return strconv.FormatUint(start, 10) + "-" + strconv.FormatUint(end, 10)
}

// FromSize renders the range covering size bytes starting at start. size must be > 0.
func FromSize(start, size uint64) string {
	return Format(start, start+size-1)
}

// Size returns the number of bytes covered by s.
func Size(s string) (uint64, error) {
	start, end, err := Parse(s)
	if err != nil {
		return 0, err
	}
	return end - start + 1, nil
}
