package wire

import (
	"encoding/json"
	"fmt"
)

// DecodeRequest parses a raw client→server frame. Only Request frames are
// legal inbound; anything else (or malformed JSON) is reported as an error
// so the caller can decide whether a failed Response can be correlated
// back: malformed frames are answered with a failed response if the id can
// be recovered, or logged and dropped.
func DecodeRequest(raw []byte) (*Request, error) {
	var probe RawFrame
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	disc, name, ok := probe.Discriminator()
	if !ok || disc != DiscriminatorRequest {
		return nil, fmt.Errorf("expected a request frame, got discriminator %q", disc)
	}

	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("malformed request %q: %w", name, err)
	}
	return &req, nil
}

// RecoverID best-effort extracts the request id from a raw frame that failed
// full decoding, so a failed Response can still correlate to it.
func RecoverID(raw []byte) (name string, id uint64, ok bool) {
	var probe RawFrame
	if err := json.Unmarshal(raw, &probe); err != nil {
		return "", 0, false
	}
	disc, n, found := probe.Discriminator()
	if !found || disc != DiscriminatorRequest {
		return "", 0, false
	}
	return n, probe.ID, true
}
