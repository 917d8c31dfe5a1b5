// Package encoding includes implementations of encoding.TextMarshaler and encoding.TextUnmarshaler
// to encode and decode program images.
//
// A program image is a plain text listing: one hexadecimal 16-bit word per line, an optional
// "0x"/"0X" prefix, whitespace trimmed. Blank lines and lines beginning with ';' or '#' are
// comments and are ignored. Words are loaded into memory starting at address 0, in the order they
// appear, each written little-endian.
//
//	; a five-word program
//	C105
//	0xC203
//	1312
//	3421
//	FFFF
package encoding

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/cassitly/cvere-core/internal/machine"
)

// HexListing implements marshalling and unmarshalling of program images as plain hex-word text
// listings.
type HexListing struct {
	Words []machine.Word
}

// MarshalText renders the listing as one uppercase 4-hex-digit word per line.
func (h *HexListing) MarshalText() ([]byte, error) {
	var buf bytes.Buffer

	for _, w := range h.Words {
		fmt.Fprintf(&buf, "%04X\n", uint16(w))
	}

	return buf.Bytes(), nil
}

// UnmarshalText parses a hex-word listing, skipping blank lines and comment lines.
func (h *HexListing) UnmarshalText(bs []byte) error {
	scanner := bufio.NewScanner(bytes.NewReader(bs))

	var words []machine.Word

	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}

		line = strings.TrimPrefix(line, "0x")
		line = strings.TrimPrefix(line, "0X")

		v, err := strconv.ParseUint(line, 16, 16)
		if err != nil {
			return fmt.Errorf("%w: line %d: %q: %s", ErrDecode, lineNo, line, err)
		}

		words = append(words, machine.Word(v))
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %s", ErrDecode, err)
	}

	if len(words) == 0 {
		return errEmpty
	}

	h.Words = words

	return nil
}

// decodingError is a sentinel type so ErrDecode can be matched with errors.Is regardless of the
// specific message wrapped around it.
type decodingError struct{}

func (decodingError) Error() string {
	return "decoding error"
}

func (de *decodingError) Is(err error) bool {
	if de == err {
		return true
	}

	_, ok := err.(*decodingError)

	return ok
}

var (
	// ErrDecode is a wrapped error that is returned when decoding fails.
	ErrDecode = &decodingError{}

	errEmpty = fmt.Errorf("%w: no data decoded", ErrDecode)
)
