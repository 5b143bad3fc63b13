package payone

import "fmt"

// RequestError is a processor-level rejection. ErrorCode and ErrorMessage are
// machine-oriented and belong in logs; CustomerMessage is safe to display.
type RequestError struct {
	ErrorCode       string
	ErrorMessage    string
	CustomerMessage string
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("payone request rejected: code=%s message=%s", e.ErrorCode, e.ErrorMessage)
}

// TransportError wraps a network or protocol failure talking to the gateway.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	if e == nil || e.Err == nil {
		return "payone transport error"
	}
	return "payone transport error: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
