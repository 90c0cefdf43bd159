package pvgis

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError is a failed exchange with PVGIS: the request never got a
// response, or the response was not 2xx. StatusCode is 0 for network errors.
type TransportError struct {
	StatusCode int
	Slope      int
	Azimuth    int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("pvgis: slope=%d azimuth=%d: status %d: %s", e.Slope, e.Azimuth, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("pvgis: slope=%d azimuth=%d: %v", e.Slope, e.Azimuth, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Temporary reports whether repeating the same request may succeed.
func (e *TransportError) Temporary() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// MalformedResponseError is a 2xx response whose body does not carry an
// hourly power series.
type MalformedResponseError struct {
	Slope   int
	Azimuth int
	Reason  string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("pvgis: slope=%d azimuth=%d: malformed response: %s", e.Slope, e.Azimuth, e.Reason)
}

func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func IsMalformed(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}
