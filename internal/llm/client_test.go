package llm

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestAssembleTurnsAppendsUserMessage(t *testing.T) {
	turns, err := assembleTurns(RunRequest{
		History: []Turn{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
		},
		UserMessage: "how are you?",
	})
	if err != nil {
		t.Fatalf("assembleTurns() error = %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("got %d turns, want 3", len(turns))
	}
	last := turns[2]
	if last.Role != RoleUser || last.Content != "how are you?" {
		t.Errorf("last turn = %+v", last)
	}
}

func TestAssembleTurnsRejectsUnknownRole(t *testing.T) {
	_, err := assembleTurns(RunRequest{
		History: []Turn{{Role: "moderator", Content: "x"}},
	})
	if err == nil {
		t.Fatal("unknown role accepted")
	}
	if !strings.Contains(err.Error(), "moderator") {
		t.Errorf("err = %v, should name the offending role", err)
	}
}

func TestAssembleTurnsNoUserMessage(t *testing.T) {
	turns, err := assembleTurns(RunRequest{
		History: []Turn{{Role: RoleTool, Content: "result", ToolID: "c1"}},
	})
	if err != nil {
		t.Fatalf("assembleTurns() error = %v", err)
	}
	if len(turns) != 1 {
		t.Errorf("got %d turns, want history only", len(turns))
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{Provider: "openai"}); err == nil {
		t.Error("missing API key accepted")
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New(Config{Provider: "mystery", APIKey: "k"}); err == nil {
		t.Error("unknown provider accepted")
	}
}

func TestNewBuildsKnownProviders(t *testing.T) {
	for _, provider := range []string{"openai", "anthropic"} {
		c, err := New(Config{Provider: provider, APIKey: "k"})
		if err != nil {
			t.Errorf("New(%s) error = %v", provider, err)
			continue
		}
		if c.Name() != provider {
			t.Errorf("Name() = %q, want %q", c.Name(), provider)
		}
	}
}

func TestRunAsyncDeliversOutcome(t *testing.T) {
	client := &flakyClient{}
	ch := RunAsync(context.Background(), client, RunRequest{Model: "m"})

	select {
	case out := <-ch:
		if out.Err != nil {
			t.Fatalf("outcome error = %v", out.Err)
		}
		if out.Result.Content != "ok" {
			t.Errorf("Content = %q", out.Result.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("no outcome delivered")
	}
}
