package agent

import (
	"bytes"
	"encoding/json"
)

// terminalMarker is the substring that signals the terminal JSON object of a
// stream-query response may be complete. The upstream protocol does not
// guarantee the object arrives in one transport chunk, so its presence only
// justifies a parse attempt, never a parse expectation.
const terminalMarker = `"finish_reason"`

type decodeState int

const (
	stateAccumulating decodeState = iota
	stateParsedEarly
	stateParsedAtEnd
	stateFailed
)

// streamDecoder accumulates raw response bytes and performs at most one
// successful parse: opportunistically once the terminal marker is seen, or on
// the full buffer at end of stream. Failed mid-stream parses are the expected
// steady state and are not errors.
type streamDecoder struct {
	buf     bytes.Buffer
	state   decodeState
	payload map[string]interface{}
}

func newStreamDecoder() *streamDecoder {
	return &streamDecoder{state: stateAccumulating}
}

// Write appends a transport chunk and reports whether the terminal object
// became parseable with this chunk.
func (d *streamDecoder) Write(chunk []byte) bool {
	d.buf.Write(chunk)

	if d.state != stateAccumulating {
		return false
	}
	if !bytes.Contains(chunk, []byte(terminalMarker)) && !bytes.Contains(d.buf.Bytes(), []byte(terminalMarker)) {
		return false
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(d.buf.Bytes(), &payload); err != nil {
		// Partial object, keep buffering
		return false
	}

	d.payload = payload
	d.state = stateParsedEarly
	return true
}

// Parsed reports whether the terminal object has already been decoded.
func (d *streamDecoder) Parsed() bool {
	return d.state == stateParsedEarly || d.state == stateParsedAtEnd
}

// Payload returns the decoded terminal object, if any.
func (d *streamDecoder) Payload() map[string]interface{} {
	return d.payload
}

// Finish is called once the transport signals end of stream. If no early
// parse succeeded it attempts a final parse of the accumulated buffer and
// fails with a DecodeError when the buffer is not valid JSON.
func (d *streamDecoder) Finish() (map[string]interface{}, error) {
	switch d.state {
	case stateParsedEarly, stateParsedAtEnd:
		return d.payload, nil
	case stateFailed:
		return nil, &DecodeError{Raw: d.buf.String()}
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(d.buf.Bytes(), &payload); err != nil {
		d.state = stateFailed
		return nil, &DecodeError{Raw: d.buf.String(), Err: err}
	}

	d.payload = payload
	d.state = stateParsedAtEnd
	return payload, nil
}
