package agent

import "fmt"

// RemoteError signals a transport or upstream failure talking to the agent
// platform. The upstream status code and body are carried for diagnostic
// surfacing, never swallowed.
type RemoteError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("agent platform %s failed: status %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("agent platform %s failed: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// DecodeError signals that the terminal stream buffer could not be parsed as
// JSON once the transport reached end of stream.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("unable to parse stream response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
