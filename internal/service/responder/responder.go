package responder

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"raggate/internal/config"
	"raggate/internal/models"
)

const systemPrompt = "You are a knowledge-augmented assistant. " +
	"Consult the knowledge base before answering and ground your reply in what you find. " +
	"If the knowledge base has nothing relevant, say the answer comes from your own understanding."

// Service generates responses through the configured model provider,
// wrapping it in a react agent when knowledge tools are available.
type Service struct {
	chatModel model.ToolCallingChatModel
	agent     *react.Agent
}

// NewService builds the responder for the provider selected in config.
func NewService(cfg *config.Config) (*Service, error) {
	provider := cfg.Responder.Provider
	provCfg, ok := cfg.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", provider)
	}
	modelName := cfg.Responder.Model
	if modelName == "" {
		modelName = provCfg.Model
	}

	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(context.Background(), &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   modelName,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(context.Background(), &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("init gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(context.Background(), &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(context.Background(), &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}

	svc := &Service{chatModel: chatModel}

	tools := initKnowledgeTools(cfg.BasicConfig.KnowledgeDir)
	if len(tools) > 0 {
		agent, err := react.NewAgent(context.Background(), &react.AgentConfig{
			ToolCallingModel: chatModel,
			ToolsConfig: compose.ToolsNodeConfig{
				Tools: tools,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("init react agent: %w", err)
		}
		svc.agent = agent
	}
	return svc, nil
}

// Generate answers a query given the stored conversation so far. The
// conversation already ends with the latest user message.
func (s *Service) Generate(ctx context.Context, query string, conversation []*models.Message) (string, error) {
	messages := convertMessages(conversation)
	if len(messages) == 1 {
		messages = append(messages, &schema.Message{Role: schema.User, Content: query})
	}

	var (
		resp *schema.Message
		err  error
	)
	if s.agent != nil {
		resp, err = s.agent.Generate(ctx, messages)
	} else {
		resp, err = s.chatModel.Generate(ctx, messages)
	}
	if err != nil {
		return "", fmt.Errorf("generate response: %w", err)
	}
	if resp.Content == "" {
		return "", errors.New("empty response from model")
	}
	return resp.Content, nil
}

func convertMessages(conversation []*models.Message) []*schema.Message {
	messages := make([]*schema.Message, 0, len(conversation)+1)
	messages = append(messages, &schema.Message{Role: schema.System, Content: systemPrompt})
	for _, msg := range conversation {
		if msg == nil {
			continue
		}
		role := schema.User
		if msg.Role == models.RoleAssistant {
			role = schema.Assistant
		}
		messages = append(messages, &schema.Message{Role: role, Content: msg.Content})
	}
	return messages
}
