package detection

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Inbound message types on the listen channel.
const (
	MessageWakeWordDetected = "wake_word_detected"
	MessageLog              = "log"
	MessageError            = "error"
)

// Outbound control actions on the listen channel.
const (
	ActionPauseListening  = "pause_listening"
	ActionResumeListening = "resume_listening"
)

// ServerMessage is an inbound event from the wake-word detection service.
type ServerMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// ControlMessage is an outbound control message to the detection service.
type ControlMessage struct {
	Action string `json:"action"`
}

// serverMessageSchema validates inbound listen-channel messages. Anything that
// fails validation is logged and dropped, never fatal.
const serverMessageSchema = `{
	"type": "object",
	"required": ["type"],
	"properties": {
		"type": {
			"type": "string",
			"enum": ["wake_word_detected", "log", "error"]
		},
		"message": {
			"type": "string"
		}
	}
}`

var compiledServerSchema = gojsonschema.NewStringLoader(serverMessageSchema)

// ParseServerMessage validates raw bytes against the listen-channel schema and
// decodes them. It returns an error for malformed or unknown messages; callers
// drop those without escalating.
func ParseServerMessage(data []byte) (*ServerMessage, error) {
	result, err := gojsonschema.Validate(compiledServerSchema, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("message validation failed: %w", err)
	}
	if !result.Valid() {
		return nil, fmt.Errorf("malformed server message: %v", result.Errors())
	}

	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode server message: %w", err)
	}
	return &msg, nil
}
