// Package api implements the REST resources of the service independently of
// the transport. The local HTTP server and the API Gateway Lambda adapter
// both translate their requests into Request and write back Response.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Resource templates routed to the handlers.
const (
	ResourceOrders   = "/orders"
	ResourceProducts = "/products"
	ResourceProduct  = "/products/{id}"
)

// Request is a transport-neutral API call.
type Request struct {
	Method     string
	Resource   string
	PathParams map[string]string
	Query      map[string]string
	Body       []byte
	// RequestID identifies the invocation handling the call; APIRequestID is
	// the id assigned by the API front end.
	RequestID    string
	APIRequestID string
	// Principal is the e-mail of the calling user, when known.
	Principal string
}

// Response is what a handler answers.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Handler serves API requests. A returned error means the call failed in a
// way the client cannot fix, for example an unavailable downstream.
type Handler interface {
	Handle(ctx context.Context, req Request) (Response, error)
}

// ValidationError describes a malformed request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + " " + e.Reason
}

func invalid(field, reason string) error { return &ValidationError{Field: field, Reason: reason} }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// decodeStrict parses a JSON object body into v, rejecting unknown fields
// and trailing data.
func decodeStrict(body []byte, v any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return invalid("", "request body is required")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return invalid("", fmt.Sprintf("invalid JSON body: %v", err))
	}
	if dec.More() {
		return invalid("", "unexpected data after JSON body")
	}
	return nil
}

func text(status int, msg string) Response {
	return Response{StatusCode: status, ContentType: "text/plain; charset=utf-8", Body: []byte(msg)}
}

func jsonResponse(status int, v any) (Response, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Response{}, fmt.Errorf("encode response: %w", err)
	}
	return Response{StatusCode: status, ContentType: "application/json", Body: b}, nil
}

func badRequest() Response { return text(http.StatusBadRequest, "Bad request") }
