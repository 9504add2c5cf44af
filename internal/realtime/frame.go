package realtime

import "encoding/json"

const (
	FrameHeartbeat    = "heartbeat"
	FrameNotification = "notification"
)

// Frame is the envelope written to every push connection.
type Frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// encodedFrame is a Frame serialized once and shared by every recipient.
type encodedFrame struct {
	kind string
	data []byte
}

func encode(f Frame) (encodedFrame, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return encodedFrame{}, err
	}
	return encodedFrame{kind: f.Type, data: b}, nil
}

var heartbeat = encodedFrame{kind: FrameHeartbeat, data: []byte(`{"type":"heartbeat"}`)}
