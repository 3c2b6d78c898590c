package httppresentation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/pkg/apperr"
)

// kinder is satisfied by *apperr.Error.
type kinder interface {
	Kind() string
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError renders err as {"error":{"kind","message"}}. Internal causes are
// logged and never shown to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := string(apperr.KindOf(err))
	var k kinder
	if errors.As(err, &k) {
		kind = k.Kind()
	}
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logctx.FromOr(r.Context(), observability.NopLogger()).Error("http_request_failed",
			observability.F("kind", kind),
			observability.F("error", err.Error()),
		)
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Kind: kind, Message: apperr.Message(err)}})
}

func decodeJSON(r *http.Request, dst any) error {
	return decode(r, dst, false)
}

// decodeOptionalJSON accepts an empty body and leaves dst untouched.
func decodeOptionalJSON(r *http.Request, dst any) error {
	return decode(r, dst, true)
}

func decode(r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return apperr.Validation(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}
