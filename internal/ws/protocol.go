package ws

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"duel-arena/internal/arena"
	"duel-arena/internal/duel"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const ProtocolVersion = "1.0"

const (
	MsgReady        = "ready"
	MsgSubmitAction = "submit_action"
	MsgForfeit      = "forfeit"

	MsgResult = "result"
	MsgError  = "error"
)

//go:embed schema/client_v1.schema.json
var clientSchemaJSON string

var clientSchema = jsonschema.MustCompileString("client_v1.schema.json", clientSchemaJSON)

type ClientMessage struct {
	Type      string       `json:"type"`
	RequestID string       `json:"request_id,omitempty"`
	Action    *duel.Action `json:"action,omitempty"`
}

type ServerMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	EventID         string `json:"event_id,omitempty"`
	DuelID          string `json:"duel_id"`
	ServerTS        int64  `json:"server_ts"`
	RequestID       string `json:"request_id,omitempty"`
	Ok              *bool  `json:"ok,omitempty"`
	Error           string `json:"error,omitempty"`
	Data            any    `json:"data,omitempty"`
}

// decodeClientMessage checks raw against the client schema before decoding.
func decodeClientMessage(raw []byte) (ClientMessage, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ClientMessage{}, fmt.Errorf("malformed json: %w", err)
	}
	if err := clientSchema.Validate(doc); err != nil {
		return ClientMessage{}, err
	}
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ClientMessage{}, err
	}
	return msg, nil
}

func eventMessage(ev arena.Event) ServerMessage {
	return ServerMessage{
		Type:            ev.Event,
		ProtocolVersion: ProtocolVersion,
		EventID:         ev.EventID,
		DuelID:          ev.DuelID,
		ServerTS:        ev.ServerTS,
		Data:            ev.Data,
	}
}

func resultMessage(duelID, requestID string, data any) ServerMessage {
	ok := true
	return ServerMessage{
		Type:            MsgResult,
		ProtocolVersion: ProtocolVersion,
		DuelID:          duelID,
		ServerTS:        time.Now().UnixMilli(),
		RequestID:       requestID,
		Ok:              &ok,
		Data:            data,
	}
}

func errorMessage(duelID, requestID, code string) ServerMessage {
	return ServerMessage{
		Type:            MsgError,
		ProtocolVersion: ProtocolVersion,
		DuelID:          duelID,
		ServerTS:        time.Now().UnixMilli(),
		RequestID:       requestID,
		Error:           code,
	}
}
