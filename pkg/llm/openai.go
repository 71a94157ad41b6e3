package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	apperrors "github.com/alinorwa/nurse-assistant-management/pkg/errors"
)

const (
	AzureAPIVersion = "2024-02-15-preview"
	VisionMaxTokens = 400

	visionSystemPrompt = "You are a helpful medical AI assistant."
	visionPrompt       = `You are a professional medical triage assistant.
Analyze this image provided by a refugee patient.

Output Format (in Norwegian):
- **Funn:** [Description]
- **Mulig årsak:** [Condition]
- **Anbefaling:** [Action]

End with: "⚠️ AI-analyse kun for støtte. Kontakt lege for diagnose."`

	translatePrompt = "Translate the user's message from %s to %s. Reply with the translation only, no quotes or commentary."
)

// OpenAIHandler talks to an OpenAI-compatible chat completion endpoint,
// either Azure OpenAI (deployment based) or the public API.
type OpenAIHandler struct {
	client *openai.Client
	model  string
	logger *logrus.Logger
}

// NewAzureOpenAIHandler builds a handler for an Azure OpenAI deployment.
func NewAzureOpenAIHandler(key, endpoint, deployment, apiVersion string, logger *logrus.Logger) *OpenAIHandler {
	if key == "" || endpoint == "" {
		return &OpenAIHandler{logger: defaultLogger(logger)}
	}
	cfg := openai.DefaultAzureConfig(key, endpoint)
	if apiVersion == "" {
		apiVersion = AzureAPIVersion
	}
	cfg.APIVersion = apiVersion
	if deployment == "" {
		deployment = "gpt-4o"
	}
	cfg.AzureModelMapperFunc = func(string) string { return deployment }
	return &OpenAIHandler{
		client: openai.NewClientWithConfig(cfg),
		model:  deployment,
		logger: defaultLogger(logger),
	}
}

// NewOpenAIHandler builds a handler for the public API or a compatible base URL.
func NewOpenAIHandler(key, baseURL, model string, logger *logrus.Logger) *OpenAIHandler {
	if key == "" {
		return &OpenAIHandler{logger: defaultLogger(logger)}
	}
	cfg := openai.DefaultConfig(key)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAIHandler{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: defaultLogger(logger),
	}
}

func defaultLogger(l *logrus.Logger) *logrus.Logger {
	if l == nil {
		return logrus.StandardLogger()
	}
	return l
}

// Configured reports whether credentials were supplied.
func (h *OpenAIHandler) Configured() bool {
	return h.client != nil
}

// Analyze implements VisionAnalyzer.
func (h *OpenAIHandler) Analyze(ctx context.Context, image []byte) (string, error) {
	if h.client == nil {
		return "", ErrNotConfigured
	}
	dataURI := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)

	req := openai.ChatCompletionRequest{
		Model:     h.model,
		MaxTokens: VisionMaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: visionSystemPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: visionPrompt},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
						URL:    dataURI,
						Detail: openai.ImageURLDetailAuto,
					}},
				},
			},
		},
	}
	return h.complete(ctx, req)
}

// Translate implements Translator through a chat completion.
func (h *OpenAIHandler) Translate(ctx context.Context, text, source, target string) (string, error) {
	if h.client == nil {
		return "", ErrNotConfigured
	}
	req := openai.ChatCompletionRequest{
		Model:       h.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(translatePrompt, source, target)},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	}
	return h.complete(ctx, req)
}

func (h *OpenAIHandler) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := h.client.CreateChatCompletion(ctx, req)
	if err != nil {
		h.logger.Warnf("chat completion failed: %v", err)
		return "", apperrors.Wrap(err, apperrors.KindTransient, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}
