package protocol

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ACT ops.
const (
	OpSetIdentity   = "SET_IDENTITY"
	OpNewGame       = "NEW_GAME"
	OpLoadGame      = "LOAD_GAME"
	OpEndSession    = "END_SESSION"
	OpSave          = "SAVE"
	OpDeleteSave    = "DELETE_SAVE"
	OpPlace         = "PLACE"
	OpStack         = "STACK"
	OpRemove        = "REMOVE"
	OpRotate        = "ROTATE"
	OpClick         = "CLICK"
	OpSelectTool    = "SELECT_TOOL"
	OpHover         = "HOVER"
	OpRotateHovered = "ROTATE_HOVERED"
	OpClaimGoal     = "CLAIM_GOAL"
	OpRetryGoal     = "RETRY_GOAL"
	OpDismissError  = "DISMISS_ERROR"
)

// ACT (client -> server)
type ActMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id,omitempty"`
	Op              string `json:"op"`

	X         int    `json:"x"`
	Y         int    `json:"y"`
	Furniture string `json:"furniture,omitempty"`
	// "base" (default) or "stacked"; used by ROTATE.
	Layer string `json:"layer,omitempty"`
	// Clears the hover when true; used by HOVER.
	Clear    bool   `json:"clear,omitempty"`
	Identity string `json:"identity,omitempty"`
}

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	helloSchema = mustSchema("hello.schema.json")
	actSchema   = mustSchema("act.schema.json")
)

func mustSchema(name string) *jsonschema.Schema {
	raw, err := schemaFS.ReadFile("schemas/" + name)
	if err != nil {
		panic(err)
	}
	return jsonschema.MustCompileString(name, string(raw))
}

// DecodeHello validates and decodes a HELLO frame.
func DecodeHello(b []byte) (HelloMsg, error) {
	var m HelloMsg
	if err := validate(helloSchema, b); err != nil {
		return m, err
	}
	err := json.Unmarshal(b, &m)
	return m, err
}

// DecodeAct validates and decodes an ACT frame.
func DecodeAct(b []byte) (ActMsg, error) {
	var m ActMsg
	if err := validate(actSchema, b); err != nil {
		return m, err
	}
	err := json.Unmarshal(b, &m)
	return m, err
}

func validate(s *jsonschema.Schema, b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}
