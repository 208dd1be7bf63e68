package protocol

import "strconv"

// Opcode identifies the kind of a gateway frame.
type Opcode int

const (
	OpDispatch            Opcode = 0
	OpHeartbeat           Opcode = 1
	OpIdentify            Opcode = 2
	OpPresenceUpdate      Opcode = 3
	OpVoiceStateUpdate    Opcode = 4
	OpResume              Opcode = 6
	OpReconnect           Opcode = 7
	OpRequestGuildMembers Opcode = 8
	OpInvalidSession      Opcode = 9
	OpHello               Opcode = 10
	OpHeartbeatAck        Opcode = 11
)

func (o Opcode) String() string {
	switch o {
	case OpDispatch:
		return "dispatch"
	case OpHeartbeat:
		return "heartbeat"
	case OpIdentify:
		return "identify"
	case OpPresenceUpdate:
		return "presence_update"
	case OpVoiceStateUpdate:
		return "voice_state_update"
	case OpResume:
		return "resume"
	case OpReconnect:
		return "reconnect"
	case OpRequestGuildMembers:
		return "request_guild_members"
	case OpInvalidSession:
		return "invalid_session"
	case OpHello:
		return "hello"
	case OpHeartbeatAck:
		return "heartbeat_ack"
	default:
		return "op_" + strconv.Itoa(int(o))
	}
}

// Intents is the gateway intents bitmask sent in identify.
type Intents uint64

const (
	IntentGuilds                 Intents = 1 << 0
	IntentGuildMembers           Intents = 1 << 1
	IntentGuildModeration        Intents = 1 << 2
	IntentGuildExpressions       Intents = 1 << 3
	IntentGuildIntegrations      Intents = 1 << 4
	IntentGuildWebhooks          Intents = 1 << 5
	IntentGuildInvites           Intents = 1 << 6
	IntentGuildVoiceStates       Intents = 1 << 7
	IntentGuildPresences         Intents = 1 << 8
	IntentGuildMessages          Intents = 1 << 9
	IntentGuildMessageReactions  Intents = 1 << 10
	IntentGuildMessageTyping     Intents = 1 << 11
	IntentDirectMessages         Intents = 1 << 12
	IntentDirectMessageReactions Intents = 1 << 13
	IntentDirectMessageTyping    Intents = 1 << 14
	IntentMessageContent         Intents = 1 << 15
	IntentGuildScheduledEvents   Intents = 1 << 16
)

// Has reports whether every bit of other is set.
func (i Intents) Has(other Intents) bool {
	return i&other == other
}
