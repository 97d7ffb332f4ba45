package registry

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxLocatorLen bounds a canonical locator in bytes.
const DefaultMaxLocatorLen = 256

var ErrInvalidLocator = errors.New("invalid schema locator")

// CanonicalLocator normalises a schema locator so that visually identical
// locators map to the same component type: surrounding space is trimmed and
// the text is put in Unicode NFC.
func CanonicalLocator(locator string, maxLen int) (string, error) {
	canonical := norm.NFC.String(strings.TrimSpace(locator))
	if canonical == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidLocator)
	}
	if len(canonical) > maxLen {
		return "", fmt.Errorf("%w: %d bytes, max %d", ErrInvalidLocator, len(canonical), maxLen)
	}
	if strings.IndexFunc(canonical, unicode.IsControl) >= 0 {
		return "", fmt.Errorf("%w: control character", ErrInvalidLocator)
	}
	return canonical, nil
}
