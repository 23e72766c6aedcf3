package cel

import (
	"testing"

	"github.com/grahame/gubinge/internal/domain/policy"
	"github.com/grahame/gubinge/pkg/sshagent"
)

func TestNewOverlayEnvironment(t *testing.T) {
	env, err := NewOverlayEnvironment()
	if err != nil {
		t.Fatalf("NewOverlayEnvironment() error: %v", err)
	}
	if env == nil {
		t.Fatal("expected non-nil environment")
	}
}

func TestBuildActivation(t *testing.T) {
	evalCtx := policy.EvaluationContext{Opcode: sshagent.SSH2AgentcSignRequest, Direction: sshagent.ClientToAgent}
	activation := BuildActivation(evalCtx)

	if activation["opcode"] != int64(sshagent.SSH2AgentcSignRequest) {
		t.Errorf("opcode = %v, want %d", activation["opcode"], sshagent.SSH2AgentcSignRequest)
	}
	if activation["direction"] != "client->agent" {
		t.Errorf("direction = %v, want client->agent", activation["direction"])
	}
}
