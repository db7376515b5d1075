package gateway

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/dropship-fulfillment/internal/domain/supplier"
)

// send executes one HTTP request and returns the response body, mapping
// non-2xx responses onto *APIError. 5xx and 429 are transient; other
// 4xx carry the supplier's message and are not retried.
func send(ctx context.Context, client *http.Client, sup supplier.Type, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, &APIError{Supplier: sup, Message: err.Error(), Transient: true}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &APIError{Supplier: sup, StatusCode: resp.StatusCode, Message: err.Error(), Transient: true}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			Supplier:   sup,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
			Transient:  resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
		}
	}
	return body, nil
}

// errorMessage pulls the human-readable message out of a vendor error
// body. Falls back to the raw body.
func errorMessage(body []byte) string {
	var msg string
	d := jx.DecodeBytes(body)
	_ = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "message", "error", "error_description":
			s, err := d.Str()
			if err != nil {
				return err
			}
			if msg == "" {
				msg = s
			}
			return nil
		default:
			return d.Skip()
		}
	})
	if msg == "" {
		msg = string(bytes.TrimSpace(body))
	}
	return msg
}
