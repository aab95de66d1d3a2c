package realtime

import "fmt"

// FetchFailure reports a feed request that did not produce a 200 response
// body. Status is 0 when no response was received.
type FetchFailure struct {
	Endpoint string
	Status   int
	Err      error
}

func (e *FetchFailure) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.Endpoint, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Endpoint, e.Err)
}

func (e *FetchFailure) Unwrap() error {
	return e.Err
}

// DecodeFailure reports a malformed feed payload. Feed is set by the
// Poller; a bare Decode call leaves it empty.
type DecodeFailure struct {
	Feed string
	Mode Mode
	Err  error
}

func (e *DecodeFailure) Error() string {
	if e.Feed != "" {
		return fmt.Sprintf("decode %s (%s): %v", e.Feed, e.Mode, e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.Mode, e.Err)
}

func (e *DecodeFailure) Unwrap() error {
	return e.Err
}
