package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"studyguider/internal/models"
	"studyguider/internal/observability"
)

const defaultMaxRounds = 3

var (
	ErrUnknownCapability = errors.New("unknown capability")
	ErrEmptyHistory      = errors.New("history must contain at least one message")
)

// Turn is the outcome of one agent run.
type Turn struct {
	Reply       string
	Invocations []models.ToolInvocation
}

// Options tune an Agent. Zero values pick defaults.
type Options struct {
	// MaxRounds bounds how many tool-calling rounds a turn may take before
	// the model is asked to answer without tools.
	MaxRounds int
	// Answerer synthesizes knowledge lookups; defaults to the chat model.
	Answerer model.BaseChatModel
}

// Agent answers study abroad questions, choosing per turn between the
// knowledge base, a live search, or a direct reply. It keeps no state between runs.
type Agent struct {
	chatModel model.ToolCallingChatModel
	toolModel model.ToolCallingChatModel
	tools     map[string]tool.InvokableTool
	maxRounds int
}

func New(ctx context.Context, chatModel model.ToolCallingChatModel, retriever Retriever, searcher Searcher, opts Options) (*Agent, error) {
	if chatModel == nil {
		return nil, errors.New("chat model required")
	}
	if retriever == nil || searcher == nil {
		return nil, errors.New("retriever and searcher required")
	}
	answerer := opts.Answerer
	if answerer == nil {
		answerer = chatModel
	}
	maxRounds := opts.MaxRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxRounds
	}

	capabilities := []tool.InvokableTool{
		&knowledgeLookup{retriever: retriever, answerer: answerer},
		&liveSearch{searcher: searcher},
	}
	tools := make(map[string]tool.InvokableTool, len(capabilities))
	infos := make([]*schema.ToolInfo, 0, len(capabilities))
	for _, c := range capabilities {
		info, err := c.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		tools[info.Name] = c
		infos = append(infos, info)
	}
	toolModel, err := chatModel.WithTools(infos)
	if err != nil {
		return nil, fmt.Errorf("bind tools: %w", err)
	}

	return &Agent{
		chatModel: chatModel,
		toolModel: toolModel,
		tools:     tools,
		maxRounds: maxRounds,
	}, nil
}

// Run produces the assistant reply for history, whose last entry is the
// newest user message. Any tool or model failure aborts the turn.
func (a *Agent) Run(ctx context.Context, history []models.Message) (*Turn, error) {
	if len(history) == 0 {
		return nil, ErrEmptyHistory
	}
	logger := observability.LoggerFromContext(ctx)
	messages := convertMessages(history)
	turn := &Turn{}

	for round := 0; round < a.maxRounds; round++ {
		resp, err := a.toolModel.Generate(ctx, messages)
		if err != nil {
			return nil, fmt.Errorf("generate reply: %w", err)
		}
		if len(resp.ToolCalls) == 0 {
			turn.Reply = finalizeReply(resp.Content)
			return turn, nil
		}

		messages = append(messages, resp)
		for _, call := range resp.ToolCalls {
			name := call.Function.Name
			t, ok := a.tools[name]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownCapability, name)
			}
			logger.Debug("agent tool call",
				zap.String("tool", name),
				zap.String("arguments", call.Function.Arguments),
				zap.Int("round", round))
			out, err := t.InvokableRun(ctx, call.Function.Arguments)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			turn.Invocations = append(turn.Invocations, models.ToolInvocation{
				Name:   name,
				Input:  call.Function.Arguments,
				Output: out,
			})
			messages = append(messages, schema.ToolMessage(out, call.ID))
		}
	}

	logger.Warn("agent tool rounds exhausted, answering without tools", zap.Int("max_rounds", a.maxRounds))
	resp, err := a.chatModel.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("generate final reply: %w", err)
	}
	turn.Reply = finalizeReply(resp.Content)
	return turn, nil
}

func finalizeReply(content string) string {
	reply := strings.TrimSpace(content)
	if reply == "" {
		return NoReplyText
	}
	normalized := strings.ReplaceAll(reply, "’", "'")
	if strings.Contains(normalized, RefusalText) {
		return RefusalText
	}
	return reply
}

func convertMessages(history []models.Message) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history)+1)
	messages = append(messages, schema.SystemMessage(instruction))
	for _, msg := range history {
		switch msg.Role {
		case models.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(msg.Content, nil))
		case models.RoleSystem:
			messages = append(messages, schema.SystemMessage(msg.Content))
		default:
			messages = append(messages, schema.UserMessage(msg.Content))
		}
	}
	return messages
}
