package climatiq

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// APIError is a non-2xx Climatiq response. Error returns the user-facing
// translation; Message keeps the server's text.
type APIError struct {
	Status      int
	Code        string
	Message     string
	UserMessage string
}

func (e *APIError) Error() string { return e.UserMessage }

func (e *APIError) Is(target error) bool { return target == ErrRemoteCalculation }

type errorBody struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

var (
	locationPattern  = regexp.MustCompile(`Location '([^']+)'`)
	transportPattern = regexp.MustCompile(`for the (\w+) leg`)
)

func newAPIError(status int, body []byte, operation string) *APIError {
	e := &APIError{Status: status}
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		e.UserMessage = fmt.Sprintf("%s failed. Please check your input and try again.", operation)
		return e
	}
	e.Code = parsed.ErrorCode
	if e.Code == "" {
		e.Code = parsed.Error
	}
	e.Message = parsed.Message
	e.UserMessage = translate(parsed, operation)
	return e
}

func translate(b errorBody, operation string) string {
	switch {
	case b.ErrorCode == "invalid_input":
		msg := b.Message
		if strings.Contains(msg, "was not close enough to the closest transition point") {
			location := "the specified location"
			if m := locationPattern.FindStringSubmatch(msg); m != nil {
				location = m[1]
			}
			transport := "transport"
			if m := transportPattern.FindStringSubmatch(msg); m != nil {
				transport = m[1]
			}
			return fmt.Sprintf("The location %q is not close enough to available %s infrastructure. Please try a nearby major city or port.", location, transport)
		}
		if strings.Contains(msg, "route") {
			return "Invalid route specified. Please check your origin and destination locations."
		}
		if strings.Contains(msg, "cargo") || strings.Contains(msg, "weight") {
			return "Invalid cargo details. Please check your weight and unit values."
		}
		return "Invalid input provided. Please check your form data and try again."
	case b.ErrorCode == "unauthorized" || b.Error == "unauthorized":
		return "Authentication failed. Please contact support."
	case b.ErrorCode == "rate_limited":
		return "Too many requests. Please wait a moment and try again."
	case b.ErrorCode == "service_unavailable":
		return "Service temporarily unavailable. Please try again later."
	case b.Message != "":
		return "Calculation error: " + b.Message
	default:
		return fmt.Sprintf("%s failed. Please try again or contact support.", operation)
	}
}
