package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// Kind classifies failures at the AI boundary.
type Kind int

const (
	Unknown Kind = iota
	NetworkFailure
	SafetyRejection
	ServerFailure
	ParseFailure
)

func (k Kind) String() string {
	switch k {
	case NetworkFailure:
		return "network"
	case SafetyRejection:
		return "safety"
	case ServerFailure:
		return "server"
	case ParseFailure:
		return "parse"
	default:
		return "unknown"
	}
}

// Error is the typed error returned by Client implementations.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ai %s: %s failure", e.Op, e.Kind)
	}
	return fmt.Sprintf("ai %s: %s failure: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	// ErrBlocked is wrapped when a prompt or its answer was withheld by safety filters.
	ErrBlocked = errors.New("blocked by safety filters")
	// ErrEmptyResponse is wrapped when the model returned no usable content.
	ErrEmptyResponse = errors.New("empty response")
)

// wrap attaches a Kind to err, classifying it when kind is Unknown.
func wrap(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	if kind == Unknown {
		kind = classify(err)
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf classifies any error returned by the AI boundary.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return classify(err)
}

func classify(err error) Kind {
	if k, ok := classifyAPIError(err); ok {
		return k
	}

	if errors.Is(err, ErrBlocked) {
		return SafetyRejection
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NetworkFailure
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NetworkFailure
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return ParseFailure
	}

	return sniff(err.Error())
}

func classifyAPIError(err error) (Kind, bool) {
	var code int
	var msg string

	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code, msg = apiErr.Code, apiErr.Message
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		code, msg = apiErrPtr.Code, apiErrPtr.Message
	default:
		return Unknown, false
	}

	switch {
	case code >= http.StatusInternalServerError:
		return ServerFailure, true
	case code == http.StatusUnauthorized || code == http.StatusForbidden || code == http.StatusTooManyRequests:
		return ServerFailure, true
	case strings.Contains(strings.ToLower(msg), "api key"):
		return ServerFailure, true
	case strings.Contains(strings.ToLower(msg), "safety"):
		return SafetyRejection, true
	}
	return Unknown, false
}

// sniff is the substring fallback for errors that carry no type information.
func sniff(msg string) Kind {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "safety"):
		return SafetyRejection
	case strings.Contains(msg, "network"),
		strings.Contains(msg, "fetch failed"),
		strings.Contains(msg, "offline"):
		return NetworkFailure
	case strings.Contains(msg, "api key"),
		strings.Contains(msg, "500"),
		strings.Contains(msg, "internal server error"):
		return ServerFailure
	case strings.Contains(msg, "json"):
		return ParseFailure
	}
	return Unknown
}
