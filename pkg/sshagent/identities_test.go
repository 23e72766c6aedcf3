package sshagent

import "testing"

func TestIdentitiesAnswerRoundTrip(t *testing.T) {
	ids := []Identity{
		{Blob: []byte{1, 2, 3}, Comment: "alice@example.com"},
		{Blob: []byte{4, 5, 6, 7}, Comment: "bob@example.com"},
	}

	encoded := EncodeIdentitiesAnswer(ids)
	if encoded[0] != byte(SSH2AgentIdentitiesAnswer) {
		t.Fatalf("opcode = %d, want %d", encoded[0], SSH2AgentIdentitiesAnswer)
	}

	decoded, err := ParseIdentitiesAnswer(encoded[1:])
	if err != nil {
		t.Fatalf("ParseIdentitiesAnswer: %v", err)
	}
	if len(decoded) != len(ids) {
		t.Fatalf("got %d identities, want %d", len(decoded), len(ids))
	}
	for i := range ids {
		if string(decoded[i].Blob) != string(ids[i].Blob) || decoded[i].Comment != ids[i].Comment {
			t.Errorf("identity %d mismatch: got %+v want %+v", i, decoded[i], ids[i])
		}
	}
}

func TestIdentitiesAnswerEmpty(t *testing.T) {
	encoded := EncodeIdentitiesAnswer(nil)
	decoded, err := ParseIdentitiesAnswer(encoded[1:])
	if err != nil {
		t.Fatalf("ParseIdentitiesAnswer: %v", err)
	}
	if len(decoded) != 0 {
		t.Errorf("expected no identities, got %d", len(decoded))
	}
}

func TestParseIdentitiesAnswerTruncated(t *testing.T) {
	if _, err := ParseIdentitiesAnswer([]byte{0, 0}); err == nil {
		t.Fatal("expected error for truncated body")
	}
}
