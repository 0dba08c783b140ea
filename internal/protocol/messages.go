package protocol

// HELLO (host bridge -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	ClientName      string            `json:"client_name"`
	Capabilities    HelloCapabilities `json:"capabilities"`
}

type HelloCapabilities struct {
	MaxQueue int  `json:"max_queue,omitempty"`
	Events   bool `json:"events,omitempty"` // subscribe to world EVENT batches
}

// WELCOME (server -> host bridge)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	RunID           string      `json:"run_id,omitempty"`
	WorldID         string      `json:"world_id"`
	ServerTick      uint64      `json:"server_tick"`
	WorldParams     WorldParams `json:"world_params"`
	Catalog         DigestRef   `json:"catalog"`
}

type WorldParams struct {
	TickRateHz    int    `json:"tick_rate_hz"`
	Profile       string `json:"profile"`
	WaterCauldron string `json:"water_cauldron"`
	DelayTicks    int    `json:"delay_ticks"`
	MaxStack      int    `json:"max_stack"`
	ItemTTLTicks  int    `json:"item_ttl_ticks"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// CMD (host bridge -> server). Fields used depend on Op.
type CmdMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref,omitempty"`
	Op              string `json:"op"`

	Actor    string  `json:"actor,omitempty"`
	ItemID   string  `json:"item_id,omitempty"`
	Material string  `json:"material,omitempty"`
	Count    int     `json:"count,omitempty"`
	Pos      [3]int  `json:"pos"`
	To       *[3]int `json:"to,omitempty"`
	Block    string  `json:"block,omitempty"`
	Level    int     `json:"level,omitempty"`
}

// ACK (server -> host bridge), one per CMD.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
	ItemID          string `json:"item_id,omitempty"`
}

// EVENT (server -> host bridge): everything that changed in one tick.
type EventMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Tick            uint64  `json:"tick"`
	WorldID         string  `json:"world_id,omitempty"`
	Events          []Event `json:"events"`
}

type Event map[string]interface{}
