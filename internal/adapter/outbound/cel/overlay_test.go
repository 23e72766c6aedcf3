package cel

import (
	"testing"

	"github.com/grahame/gubinge/internal/domain/policy"
	"github.com/grahame/gubinge/pkg/sshagent"
)

func TestOverlayFirstMatchWins(t *testing.T) {
	overlay, err := NewOverlay([]Rule{
		{Expression: `opcode in [17, 18, 19, 25]`, Action: policy.SynthFailure},
		{Expression: `true`, Action: policy.Drop},
	})
	if err != nil {
		t.Fatalf("NewOverlay() error: %v", err)
	}

	action, matched := overlay.Override(policy.EvaluationContext{Opcode: sshagent.SSH2AgentcAddIdentity})
	if !matched || action.Kind != policy.SynthFailure {
		t.Fatalf("expected first rule to match with SynthFailure, got %v matched=%v", action.Kind, matched)
	}

	action, matched = overlay.Override(policy.EvaluationContext{Opcode: sshagent.SSH2AgentcSignRequest})
	if !matched || action.Kind != policy.Drop {
		t.Fatalf("expected fallback rule to match with Drop, got %v matched=%v", action.Kind, matched)
	}
}

func TestOverlayNoMatch(t *testing.T) {
	overlay, err := NewOverlay([]Rule{
		{Expression: `opcode == 999`, Action: policy.Drop},
	})
	if err != nil {
		t.Fatalf("NewOverlay() error: %v", err)
	}
	_, matched := overlay.Override(policy.EvaluationContext{Opcode: sshagent.SSH2AgentcSignRequest})
	if matched {
		t.Error("expected no match")
	}
}

func TestNewOverlayFailsClosedOnBadRule(t *testing.T) {
	_, err := NewOverlay([]Rule{{Expression: `not valid cel !!!`, Action: policy.Drop}})
	if err == nil {
		t.Fatal("expected error compiling invalid rule")
	}
}

func TestOverlayFingerprintStableAndOrderIndependent(t *testing.T) {
	a, err := NewOverlay([]Rule{
		{Expression: `opcode in [17, 18, 19, 25]`, Action: policy.SynthFailure},
		{Expression: `true`, Action: policy.Drop},
	})
	if err != nil {
		t.Fatalf("NewOverlay() error: %v", err)
	}
	b, err := NewOverlay([]Rule{
		{Expression: `true`, Action: policy.Drop},
		{Expression: `opcode in [17, 18, 19, 25]`, Action: policy.SynthFailure},
	})
	if err != nil {
		t.Fatalf("NewOverlay() error: %v", err)
	}

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("fingerprint should not depend on rule declaration order")
	}

	c, err := NewOverlay([]Rule{
		{Expression: `true`, Action: policy.SynthFailure},
	})
	if err != nil {
		t.Fatalf("NewOverlay() error: %v", err)
	}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("different rule sets must not collide")
	}
}
