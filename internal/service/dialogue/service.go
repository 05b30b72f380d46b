package dialogue

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/shodhai/speaking-agent/backend/internal/config"
	"github.com/shodhai/speaking-agent/backend/internal/model/agent"
)

// Apology is the degraded reply returned when the dialogue model fails or
// times out. The session always has something to broadcast.
const Apology = "Sorry, I encountered an error processing your message. Could you please try again?"

// historyLimit caps how many prior turns are replayed to the model.
const historyLimit = 10

// runner is the slice of compose.Runnable the service needs; tests swap in
// a fake without building a model chain.
type runner interface {
	Invoke(ctx context.Context, input map[string]any, opts ...compose.Option) (*schema.Message, error)
}

// Service adapts finalized utterances into model replies. It holds no
// conversation state; history lives in the session.
type Service struct {
	chain   runner
	timeout time.Duration
}

// NewService compiles the prompt + model chain from configuration.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile dialogue chain: %w", err)
	}

	return &Service{chain: runnable, timeout: cfg.Timeout}, nil
}

// newServiceWithRunner wires a prebuilt runner, used by tests.
func newServiceWithRunner(r runner, timeout time.Duration) *Service {
	return &Service{chain: r, timeout: timeout}
}

// Respond produces the assistant reply for one finalized user utterance.
// The returned text is always usable: on any model failure it is the fixed
// apology, with the underlying error returned alongside for logging.
func (s *Service) Respond(ctx context.Context, role agent.Role, history []agent.Turn, userText string) (string, error) {
	if s == nil || s.chain == nil {
		return Apology, fmt.Errorf("dialogue model unavailable")
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	input := map[string]any{
		"system":  promptForRole(role),
		"history": buildHistoryMessages(history),
		"query":   userText,
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return Apology, fmt.Errorf("dialogue model call failed: %w", err)
	}

	log.Printf("[dialogue] generated reply role=%s length=%d", role, len(response.Content))
	return response.Content, nil
}

// Greeting picks an opening line for a newly attached connection from
// the role's pool.
func (s *Service) Greeting(role agent.Role) string {
	pool := greetingsForRole(role)
	return pool[rand.Intn(len(pool))]
}

func buildHistoryMessages(turns []agent.Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	startIdx := 0
	if len(turns) > historyLimit {
		startIdx = len(turns) - historyLimit
	}

	history := make([]*schema.Message, 0, len(turns)-startIdx)
	for _, turn := range turns[startIdx:] {
		switch turn.Speaker {
		case agent.SpeakerUser:
			history = append(history, schema.UserMessage(turn.Text))
		case agent.SpeakerAssistant:
			history = append(history, schema.AssistantMessage(turn.Text, nil))
		}
	}

	return history
}
