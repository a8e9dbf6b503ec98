package transport

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/agentstation/corroborate/pkg/errors"
	"github.com/agentstation/corroborate/pkg/logging"
)

// maxErrorBody bounds how much of an error response is kept in the message.
const maxErrorBody = 512

// DecodeResponse decodes a JSON response into target. Non-200 responses
// become an APIError, which classifies 429 and 5xx as transient and other
// 4xx as fatal. Numbers decode as json.Number so large integers survive.
func DecodeResponse(source string, resp *http.Response, target any) error {
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logging.Warn().Err(err).Str("source_id", source).Msg("Failed to close response body")
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewProviderTransientError(source, errors.WrapIO("read", "response body", err))
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		endpoint := ""
		if resp.Request != nil && resp.Request.URL != nil {
			endpoint = resp.Request.URL.Redacted()
		}
		return &errors.APIError{
			Provider:   source,
			StatusCode: resp.StatusCode,
			Message:    msg,
			Endpoint:   endpoint,
		}
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(target); err != nil {
		return errors.NewProviderFatalError(source, errors.NewValidationError("body", nil, "invalid JSON: "+err.Error()))
	}
	return nil
}
