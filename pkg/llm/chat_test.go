package llm_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"github.com/xhad/inspira/pkg/llm"
)

type recordingModel struct {
	messages []llms.MessageContent
	reply    string
}

func (m *recordingModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: m.reply}},
	}, nil
}

func (m *recordingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return m.reply, nil
}

func TestNewWithConfig(t *testing.T) {
	config := llm.ChatConfig{
		Model:           "testmodel",
		Temperature:     0.5,
		MaxTokens:       1000,
		SystemTemplate:  "Test system template",
		ContextTemplate: "Test context template %s %s",
		BaseURL:         "http://localhost:1234",
	}
	engine, err := llm.NewWithConfig(config)
	assert.NoError(t, err)
	assert.NotNil(t, engine)

	_, err = llm.NewWithConfig(llm.ChatConfig{Temperature: 1.5})
	assert.Error(t, err)
}

func TestAnswerUsesContext(t *testing.T) {
	model := &recordingModel{reply: "  Socks of every colour.  "}
	engine, err := llm.NewWithModel(model, llm.ChatConfig{Temperature: 0.5})
	require.NoError(t, err)

	answer, err := engine.Answer(context.Background(), "What do we sell?", []string{"We sell colorful socks."})
	require.NoError(t, err)
	assert.Equal(t, "Socks of every colour.", answer)

	require.Len(t, model.messages, 2)
	assert.Equal(t, schema.ChatMessageTypeSystem, model.messages[0].Role)
	human := model.messages[1].Parts[0].(llms.TextContent).Text
	assert.Contains(t, human, "We sell colorful socks.")
	assert.Contains(t, human, "What do we sell?")
}

func TestChatOllama(t *testing.T) {
	baseURL := os.Getenv("OLLAMA_BASE_URL")
	if baseURL == "" {
		t.Skip("OLLAMA_BASE_URL not set")
	}

	engine, err := llm.NewWithConfig(llm.ChatConfig{Temperature: 0.5, BaseURL: baseURL})
	require.NoError(t, err)

	answer, err := engine.Answer(context.Background(),
		"What would be a good company name for a company that makes colorful socks?",
		[]string{"This is the content of the test document."})
	assert.NoError(t, err)
	assert.NotEmpty(t, answer)
}
