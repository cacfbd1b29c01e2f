// Package openai provides a capability.LLM implementation using the OpenAI
// Chat Completions API. It sends the instructions as the system message and
// the prompt as a single user message; streaming and tool calling are not
// needed by the capability contract.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
)

// Options configure the OpenAI LLM adapter.
// Fields mirror a subset of Chat Completion parameters intentionally kept
// minimal; extend via functional options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// LLM wraps the OpenAI Chat Completions API behind the capability.LLM interface.
type LLM struct {
	client *openai.Client
	opts   Options
}

// NewLLM creates a new OpenAI LLM using the official client
func NewLLM(optFns ...func(o *Options)) *LLM {
	client := openai.NewClient()
	return NewLLMFromClient(&client, optFns...)
}

// NewLLMFromClient creates a new OpenAI LLM from an existing client
func NewLLMFromClient(client *openai.Client, optFns ...func(o *Options)) *LLM {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &LLM{client: client, opts: opts}
}

// Complete implements capability.LLM via a single non-streaming chat completion.
func (m *LLM) Complete(ctx context.Context, instructions, prompt string) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if instructions != "" {
		messages = append(messages, openai.SystemMessage(instructions))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
