package protocol

import "testing"

func TestClassifyClose(t *testing.T) {
	tests := []struct {
		code  int
		want  CloseClass
		fatal bool
	}{
		{CloseNormal, CloseReinitialize, false},
		{CloseGoingAway, CloseReinitialize, false},
		{CloseAbnormal, CloseResumable, false},
		{CloseUnknownError, CloseResumable, false},
		{CloseUnknownOpcode, CloseResumable, false},
		{CloseDecodeError, CloseResumable, false},
		{CloseNotAuthenticated, CloseResumable, false},
		{CloseAuthenticationFailed, CloseReinitialize, true},
		{CloseAlreadyAuthenticated, CloseResumable, false},
		{CloseInvalidSeq, CloseReinitialize, false},
		{CloseRateLimited, CloseResumable, false},
		{CloseSessionTimedOut, CloseReinitialize, false},
		{CloseInvalidShard, CloseReinitialize, true},
		{CloseShardingRequired, CloseReinitialize, true},
		{CloseInvalidAPIVersion, CloseReinitialize, true},
		{CloseInvalidIntents, CloseReinitialize, true},
		{CloseDisallowedIntents, CloseReinitialize, true},
		{4999, CloseResumable, false},
		{3000, CloseResumable, false},
	}

	for _, tt := range tests {
		if got := ClassifyClose(tt.code); got != tt.want {
			t.Errorf("ClassifyClose(%d) = %v, want %v", tt.code, got, tt.want)
		}
		if got := IsFatalClose(tt.code); got != tt.fatal {
			t.Errorf("IsFatalClose(%d) = %v, want %v", tt.code, got, tt.fatal)
		}
	}
}
