package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeCmd     = "CMD"
	TypeAck     = "ACK"
	TypeEvent   = "EVENT"
)

// Command ops carried by CMD.
const (
	OpDropItem    = "DROP_ITEM"
	OpPickupItem  = "PICKUP_ITEM"
	OpMoveItem    = "MOVE_ITEM"
	OpSetCauldron = "SET_CAULDRON"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
