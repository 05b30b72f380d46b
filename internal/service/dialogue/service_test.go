package dialogue

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/shodhai/speaking-agent/backend/internal/model/agent"
)

type fakeRunner struct {
	reply string
	err   error
	delay time.Duration
	input map[string]any
}

func (f *fakeRunner) Invoke(ctx context.Context, input map[string]any, _ ...compose.Option) (*schema.Message, error) {
	f.input = input
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func TestRespondReturnsModelReply(t *testing.T) {
	runner := &fakeRunner{reply: "Nice to meet you!"}
	svc := newServiceWithRunner(runner, time.Second)

	reply, err := svc.Respond(context.Background(), agent.RoleLanguagePartner, nil, "Hi")
	if err != nil {
		t.Fatalf("Respond err: %v", err)
	}
	if reply != "Nice to meet you!" {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if runner.input["query"] != "Hi" {
		t.Fatalf("query not forwarded: %v", runner.input)
	}

	system, _ := runner.input["system"].(string)
	if !strings.Contains(system, "language conversation partner") {
		t.Fatalf("unexpected system prompt: %q", system)
	}
}

func TestRespondFallsBackToApologyOnError(t *testing.T) {
	svc := newServiceWithRunner(&fakeRunner{err: errors.New("boom")}, time.Second)

	reply, err := svc.Respond(context.Background(), agent.RoleInterviewCoach, nil, "Hi")
	if err == nil {
		t.Fatal("expected underlying error to be reported")
	}
	if reply != Apology {
		t.Fatalf("expected apology, got %q", reply)
	}
}

func TestRespondTimesOut(t *testing.T) {
	svc := newServiceWithRunner(&fakeRunner{reply: "late", delay: time.Second}, 20*time.Millisecond)

	start := time.Now()
	reply, err := svc.Respond(context.Background(), agent.RoleLanguagePartner, nil, "Hi")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if reply != Apology {
		t.Fatalf("expected apology, got %q", reply)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("timeout did not bound the call, took %v", elapsed)
	}
}

func TestRespondNilServiceDegrades(t *testing.T) {
	var svc *Service

	reply, err := svc.Respond(context.Background(), agent.RoleLanguagePartner, nil, "Hi")
	if err == nil {
		t.Fatal("expected unavailable error")
	}
	if reply != Apology {
		t.Fatalf("expected apology, got %q", reply)
	}
}

func TestRespondTrimsHistory(t *testing.T) {
	runner := &fakeRunner{reply: "ok"}
	svc := newServiceWithRunner(runner, time.Second)

	history := make([]agent.Turn, 0, 24)
	for i := 0; i < 12; i++ {
		history = append(history,
			agent.Turn{Speaker: agent.SpeakerUser, Text: "question"},
			agent.Turn{Speaker: agent.SpeakerAssistant, Text: "answer"},
		)
	}

	if _, err := svc.Respond(context.Background(), agent.RolePronunciationTutor, history, "Hi"); err != nil {
		t.Fatalf("Respond err: %v", err)
	}

	msgs, _ := runner.input["history"].([]*schema.Message)
	if len(msgs) != historyLimit {
		t.Fatalf("history length = %d, want %d", len(msgs), historyLimit)
	}
}

func TestPromptForRoleCoversAllRoles(t *testing.T) {
	for _, role := range agent.Roles() {
		if promptForRole(role) == "" {
			t.Fatalf("missing prompt for role %s", role)
		}
	}
	if promptForRole(agent.Role("unknown")) != rolePrompts[agent.RoleLanguagePartner] {
		t.Fatal("unknown role should fall back to language partner prompt")
	}
}

func TestGreetingComesFromRolePool(t *testing.T) {
	svc := newServiceWithRunner(&fakeRunner{}, 0)

	for _, role := range agent.Roles() {
		line := svc.Greeting(role)
		found := false
		for _, g := range roleGreetings[role] {
			if line == g {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("greeting %q not in pool for role %s", line, role)
		}
	}
}

func TestGreetingUnknownRoleFallsBack(t *testing.T) {
	svc := newServiceWithRunner(&fakeRunner{}, 0)

	line := svc.Greeting(agent.Role("unknown"))
	found := false
	for _, g := range roleGreetings[agent.RoleLanguagePartner] {
		if line == g {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("greeting %q not in language partner pool", line)
	}
}
