package transferv1connect

import (
	"bytes"
	"encoding/json"
	"fmt"

	"connectrpc.com/connect"
)

var _ connect.Codec = Codec{}

// Codec encodes the plain Go messages of transferv1 as JSON. It registers
// under the name "json" so it replaces connect's protobuf JSON codec for
// application/json and application/connect+json requests.
type Codec struct{}

func (Codec) Name() string {
	return "json"
}

func (Codec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

// Unmarshal decodes binary into msg. An empty payload leaves msg untouched
// and unknown fields are rejected.
func (Codec) Unmarshal(binary []byte, msg any) error {
	if len(bytes.TrimSpace(binary)) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(binary))
	dec.DisallowUnknownFields()
	if err := dec.Decode(msg); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}
	return nil
}
