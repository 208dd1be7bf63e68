package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestIdentify_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		intents Intents
		shard   *[2]int
	}{
		{"sharded", "token-a", IntentGuilds | IntentGuildMessages, &[2]int{3, 8}},
		{"unsharded", "token-b", IntentGuilds, nil},
		{"all bits", "token-c", IntentGuilds | IntentMessageContent | IntentGuildScheduledEvents, &[2]int{0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Identify{
				Token:      tt.token,
				Intents:    tt.intents,
				Shard:      tt.shard,
				Properties: IdentifyProperties{OS: "linux", Browser: "aura", Device: "aura"},
			}
			data, err := Encode(OpIdentify, in)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			out, err := DecodeIdentify(data)
			if err != nil {
				t.Fatalf("DecodeIdentify failed: %v", err)
			}
			if out.Token != tt.token || out.Intents != tt.intents {
				t.Errorf("got token %q intents %d", out.Token, out.Intents)
			}
			if (out.Shard == nil) != (tt.shard == nil) {
				t.Fatalf("shard presence mismatch: %v vs %v", out.Shard, tt.shard)
			}
			if tt.shard != nil && *out.Shard != *tt.shard {
				t.Errorf("shard = %v, want %v", *out.Shard, *tt.shard)
			}
		})
	}
}

func TestDecodeIdentify_WrongOpcode(t *testing.T) {
	data, _ := Encode(OpResume, Resume{Token: "t"})
	if _, err := DecodeIdentify(data); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("DecodeIdentify(resume) error = %v", err)
	}
}

func TestResume_RoundTrip(t *testing.T) {
	data, err := Encode(OpResume, Resume{Token: "t", SessionID: "abc123", Seq: 42})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	r, err := DecodeResume(data)
	if err != nil {
		t.Fatalf("DecodeResume failed: %v", err)
	}
	if r.SessionID != "abc123" || r.Seq != 42 {
		t.Errorf("resume = %+v", r)
	}
}

func TestDecodeReady(t *testing.T) {
	r, err := DecodeReady(json.RawMessage(`{"v":10,"session_id":"abc123","resume_gateway_url":"wss://resume","shard":[0,1]}`))
	if err != nil {
		t.Fatalf("DecodeReady failed: %v", err)
	}
	if r.SessionID != "abc123" || r.ResumeGatewayURL != "wss://resume" {
		t.Errorf("ready = %+v", r)
	}

	if _, err := DecodeReady(json.RawMessage(`{"v":10}`)); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("ready without session error = %v", err)
	}
}

func TestEncodeCommand(t *testing.T) {
	data, err := EncodeCommand(PresenceUpdate{Status: "online", Activities: []Activity{}})
	if err != nil {
		t.Fatalf("EncodeCommand failed: %v", err)
	}

	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.Op != OpPresenceUpdate {
		t.Errorf("op = %v, want presence_update", f.Op)
	}
}

func TestIntentsHas(t *testing.T) {
	i := IntentGuilds | IntentGuildMessages
	if !i.Has(IntentGuilds) {
		t.Error("expected Guilds bit")
	}
	if i.Has(IntentGuilds | IntentMessageContent) {
		t.Error("unexpected MessageContent bit")
	}
}
