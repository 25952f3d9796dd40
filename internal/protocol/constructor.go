package protocol

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
)

const (
	// DefaultToken is the shared secret carried in plaintext by discover requests
	DefaultToken = "lettintesttokena"

	// MaxTransactionID is the exclusive upper bound of transaction ids
	MaxTransactionID = 32767
)

// DiscoverRequest is the JSON body of a discover command
type DiscoverRequest struct {
	Tid   int    `json:"Tid"`
	Cmd   int    `json:"Cmd"`
	Token string `json:"Token"`
}

// NewTransactionID returns a random transaction id in [0, MaxTransactionID)
func NewTransactionID() uint16 {
	return uint16(rand.IntN(MaxTransactionID))
}

// BuildDiscoverRequest serializes the discover command body.
//
// Parameters:
//   - tid: transaction id shared by every fragment of the request
//   - token: shared secret expected by the gateways
//
// Returns:
//   - UTF-8 JSON, e.g. {"Tid":1234,"Cmd":1,"Token":"lettintesttokena"}
//
// Example:
//
//	tid := NewTransactionID()
//	body, err := BuildDiscoverRequest(tid, DefaultToken)
//	frames := EncodeFragments(body, CommandDiscover, tid)
func BuildDiscoverRequest(tid uint16, token string) ([]byte, error) {
	body, err := json.Marshal(DiscoverRequest{
		Tid:   int(tid),
		Cmd:   int(CommandDiscover),
		Token: token,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal discover request: %w", err)
	}
	return body, nil
}

// ParseDiscoverRequest decodes a reassembled request payload
func ParseDiscoverRequest(payload []byte) (*DiscoverRequest, error) {
	var req DiscoverRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("failed to parse discover request: %w", err)
	}
	if req.Cmd != int(CommandDiscover) {
		return nil, fmt.Errorf("unexpected command %d (expected %d)", req.Cmd, CommandDiscover)
	}
	return &req, nil
}

// BuildGatewayBody serializes the JSON a gateway returns for a discover request
func BuildGatewayBody(name string, identity [AddressSize]byte, tid uint16) ([]byte, error) {
	t := int(tid)
	body, err := json.Marshal(GatewayBody{
		Obj: &GatewayObj{Name: name},
		Mac: (&Response{Identity: identity}).MAC(),
		Tid: &t,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal gateway body: %w", err)
	}
	return body, nil
}
