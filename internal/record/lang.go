package record

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// CheckLang reports whether code looks like a locale the server could know.
// The code itself is always sent verbatim; servers accept variants such as
// "sr@latin" that are not BCP 47 tags.
func CheckLang(code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("empty language code")
	}
	base := code
	if i := strings.IndexByte(base, '@'); i >= 0 {
		base = base[:i]
	}
	tag, err := language.Parse(strings.ReplaceAll(base, "_", "-"))
	if err != nil {
		return fmt.Errorf("language code %q: %w", code, err)
	}
	if tag == language.Und {
		return fmt.Errorf("language code %q is undetermined", code)
	}
	return nil
}
