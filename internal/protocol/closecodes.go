package protocol

// Close codes sent by the gateway.
const (
	CloseNormal               = 1000
	CloseGoingAway            = 1001
	CloseAbnormal             = 1006
	CloseUnknownError         = 4000
	CloseUnknownOpcode        = 4001
	CloseDecodeError          = 4002
	CloseNotAuthenticated     = 4003
	CloseAuthenticationFailed = 4004
	CloseAlreadyAuthenticated = 4005
	CloseInvalidSeq           = 4007
	CloseRateLimited          = 4008
	CloseSessionTimedOut      = 4009
	CloseInvalidShard         = 4010
	CloseShardingRequired     = 4011
	CloseInvalidAPIVersion    = 4012
	CloseInvalidIntents       = 4013
	CloseDisallowedIntents    = 4014
)

// CloseResumeKeep is the code a client uses to drop a socket while keeping
// the session resumable on the peer (anything but 1000/1001).
const CloseResumeKeep = CloseUnknownError

// CloseClass partitions close codes by what they mean for the session.
type CloseClass int

const (
	// CloseResumable keeps the session; the next handshake is a resume.
	CloseResumable CloseClass = iota

	// CloseReinitialize discards the session; the next handshake is identify.
	CloseReinitialize
)

func (c CloseClass) String() string {
	if c == CloseReinitialize {
		return "reinitialize"
	}
	return "resumable"
}

// ClassifyClose maps a close code onto the resumable/reinitialize partition.
// Unknown codes are resumable.
func ClassifyClose(code int) CloseClass {
	switch code {
	case CloseNormal, CloseGoingAway, CloseInvalidSeq, CloseSessionTimedOut:
		return CloseReinitialize
	}
	if IsFatalClose(code) {
		return CloseReinitialize
	}
	return CloseResumable
}

// IsFatalClose reports codes after which reconnecting cannot succeed
// without a configuration change (bad token, shard or intents).
func IsFatalClose(code int) bool {
	switch code {
	case CloseAuthenticationFailed,
		CloseInvalidShard,
		CloseShardingRequired,
		CloseInvalidAPIVersion,
		CloseInvalidIntents,
		CloseDisallowedIntents:
		return true
	}
	return false
}
