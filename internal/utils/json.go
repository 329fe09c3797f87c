package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	errs "okeyonline/internal/errors"
)

const maxBodyBytes = 1 << 20

// DecodeJSONRequest decodes a required JSON body. Decoding failures are
// reported as validation errors.
func DecodeJSONRequest(r *http.Request, dst interface{}) error {
	body, err := ReadRequestBody(r)
	if err != nil {
		return fmt.Errorf("%w: failed to read request body", errs.ErrValidation)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("%w: request body is required", errs.ErrValidation)
	}
	return decode(body, dst)
}

// DecodeOptionalJSON is DecodeJSONRequest for endpoints whose body may be empty.
func DecodeOptionalJSON(r *http.Request, dst interface{}) error {
	body, err := ReadRequestBody(r)
	if err != nil {
		return fmt.Errorf("%w: failed to read request body", errs.ErrValidation)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return decode(body, dst)
}

func decode(body []byte, dst interface{}) error {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid JSON: %v", errs.ErrValidation, err)
	}
	return nil
}

func ReadRequestBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}
