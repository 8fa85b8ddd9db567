package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// decodeJSON decodes a request body into v. An empty body is treated as a
// zero-value request rather than an error, matching the teacher's
// permissive form-field handling for optional fields.
func decodeJSON(r *http.Request, v any) error {
	if r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding request body: %w", err)
	}
	return nil
}
