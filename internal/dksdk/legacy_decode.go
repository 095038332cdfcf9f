package dksdk

import (
	"bytes"
	"fmt"
	"strings"
)

// legacyRepair undoes the escaping some server versions apply when they
// return a JSON document embedded in a JSON string.
var legacyRepair = strings.NewReplacer(`\n`, "\n", `\`, "", `"{`, "{", `}"`, "}")

// decodeLegacy decodes a response body into v. Older servers return the
// document either plainly, as a JSON string holding the document, or as an
// escaped form of the latter. This is the only place that accepts those
// shapes; every API call decodes through it.
func decodeLegacy(body []byte, v any) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}

	if trimmed[0] == '"' {
		var inner string
		if err := jsonUnmarshal(trimmed, &inner); err == nil {
			if err := jsonUnmarshal([]byte(inner), v); err == nil {
				return nil
			}
		}
	}

	firstErr := jsonUnmarshal(trimmed, v)
	if firstErr == nil {
		return nil
	}

	if err := jsonUnmarshal([]byte(legacyRepair.Replace(string(trimmed))), v); err == nil {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrMalformedResponse, firstErr)
}
