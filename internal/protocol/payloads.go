package protocol

import (
	"encoding/json"
	"fmt"
)

// Dispatch event names the connection reacts to.
const (
	EventReady   = "READY"
	EventResumed = "RESUMED"
)

// IdentifyProperties describes the connecting client.
type IdentifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// Identify starts a new session.
type Identify struct {
	Token          string             `json:"token"`
	Properties     IdentifyProperties `json:"properties"`
	Compress       bool               `json:"compress,omitempty"`
	LargeThreshold int                `json:"large_threshold,omitempty"`
	Shard          *[2]int            `json:"shard,omitempty"`
	Presence       *PresenceUpdate    `json:"presence,omitempty"`
	Intents        Intents            `json:"intents"`
}

// Resume re-attaches to an existing session.
type Resume struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// ReadyPayload is the data of the READY dispatch.
type ReadyPayload struct {
	Version          int             `json:"v"`
	SessionID        string          `json:"session_id"`
	ResumeGatewayURL string          `json:"resume_gateway_url"`
	Shard            []int           `json:"shard,omitempty"`
	User             json.RawMessage `json:"user,omitempty"`
}

// DecodeReady parses the data of a READY dispatch.
func DecodeReady(data json.RawMessage) (ReadyPayload, error) {
	var r ReadyPayload
	if err := json.Unmarshal(data, &r); err != nil {
		return ReadyPayload{}, fmt.Errorf("%w: ready: %v", ErrMalformedFrame, err)
	}
	if r.SessionID == "" {
		return ReadyPayload{}, fmt.Errorf("%w: ready without session_id", ErrMalformedFrame)
	}
	return r, nil
}

// DecodeIdentify parses a full identify frame, as a peer would.
func DecodeIdentify(data []byte) (Identify, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Identify{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Op != OpIdentify {
		return Identify{}, fmt.Errorf("%w: expected identify, got %s", ErrMalformedFrame, f.Op)
	}
	var id Identify
	if err := json.Unmarshal(f.D, &id); err != nil {
		return Identify{}, fmt.Errorf("%w: identify: %v", ErrMalformedFrame, err)
	}
	return id, nil
}

// DecodeResume parses a full resume frame, as a peer would.
func DecodeResume(data []byte) (Resume, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Resume{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Op != OpResume {
		return Resume{}, fmt.Errorf("%w: expected resume, got %s", ErrMalformedFrame, f.Op)
	}
	var r Resume
	if err := json.Unmarshal(f.D, &r); err != nil {
		return Resume{}, fmt.Errorf("%w: resume: %v", ErrMalformedFrame, err)
	}
	return r, nil
}

// Command is an outbound, caller-initiated frame.
type Command interface {
	Opcode() Opcode
}

// Activity is a presence activity.
type Activity struct {
	Name string `json:"name"`
	Type int    `json:"type"`
	URL  string `json:"url,omitempty"`
}

// PresenceUpdate changes the client's presence.
type PresenceUpdate struct {
	Since      *int64     `json:"since"`
	Activities []Activity `json:"activities"`
	Status     string     `json:"status"`
	AFK        bool       `json:"afk"`
}

// VoiceStateUpdate joins, moves or leaves a voice channel.
type VoiceStateUpdate struct {
	GuildID   string  `json:"guild_id"`
	ChannelID *string `json:"channel_id"`
	SelfMute  bool    `json:"self_mute"`
	SelfDeaf  bool    `json:"self_deaf"`
}

// RequestGuildMembers asks for member chunks of a guild.
type RequestGuildMembers struct {
	GuildID   string   `json:"guild_id"`
	Query     *string  `json:"query,omitempty"`
	Limit     int      `json:"limit"`
	Presences bool     `json:"presences,omitempty"`
	UserIDs   []string `json:"user_ids,omitempty"`
	Nonce     string   `json:"nonce,omitempty"`
}

func (PresenceUpdate) Opcode() Opcode      { return OpPresenceUpdate }
func (VoiceStateUpdate) Opcode() Opcode    { return OpVoiceStateUpdate }
func (RequestGuildMembers) Opcode() Opcode { return OpRequestGuildMembers }

// EncodeCommand serializes an outbound command into a frame.
func EncodeCommand(c Command) ([]byte, error) {
	return Encode(c.Opcode(), c)
}
