package cel

import (
	"testing"

	"github.com/grahame/gubinge/internal/domain/policy"
	"github.com/grahame/gubinge/pkg/sshagent"
)

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}
	if eval == nil {
		t.Fatal("NewEvaluator() returned nil")
	}
}

func TestCompileValidExpression(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}
	if _, err := eval.Compile(`opcode == 17`); err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
}

func TestCompileInvalidExpression(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}
	if _, err := eval.Compile(`this is not valid CEL !!!`); err == nil {
		t.Fatal("expected compile error for invalid expression")
	}
}

func TestCompileRejectsEmptyExpression(t *testing.T) {
	eval, _ := NewEvaluator()
	if _, err := eval.Compile(""); err == nil {
		t.Fatal("expected error for empty expression")
	}
}

func TestEvaluateMatchesOpcode(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}
	prg, err := eval.Compile(`opcode in [17, 18, 19, 25]`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	matched, err := eval.Evaluate(prg, policy.EvaluationContext{Opcode: sshagent.SSH2AgentcAddIdentity})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !matched {
		t.Error("expected rule to match SSH2_AGENTC_ADD_IDENTITY")
	}

	matched, err = eval.Evaluate(prg, policy.EvaluationContext{Opcode: sshagent.SSH2AgentcSignRequest})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if matched {
		t.Error("expected rule not to match SSH2_AGENTC_SIGN_REQUEST")
	}
}

func TestEvaluateOpcodeName(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}
	prg, err := eval.Compile(`opcode_name(opcode) == "SSH2_AGENTC_ADD_IDENTITY"`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	matched, err := eval.Evaluate(prg, policy.EvaluationContext{Opcode: sshagent.SSH2AgentcAddIdentity})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !matched {
		t.Error("expected opcode_name match")
	}
}

func TestEvaluateNonBooleanExpressionErrors(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}
	prg, err := eval.Compile(`opcode`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if _, err := eval.Evaluate(prg, policy.EvaluationContext{Opcode: sshagent.SSH2AgentcSignRequest}); err == nil {
		t.Fatal("expected error for non-boolean result")
	}
}
