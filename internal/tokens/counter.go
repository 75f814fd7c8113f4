// SPDX-License-Identifier: AGPL-3.0-only

// Package tokens estimates how many tokens a transcript costs a provider.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/firoagni/ai-development-tutorials/internal/logging"
	"github.com/firoagni/ai-development-tutorials/internal/model"
)

// FallbackEncoding is used when a model name has no known encoding.
const FallbackEncoding = "o200k_base"

const (
	// replyPriming covers the <|start|>assistant<|message|> wrapper every
	// reply is primed with.
	replyPriming = 3
	// messageFraming covers <|start|>{role/name}\n{content}<|end|>\n.
	messageFraming = 3
	// namePenalty is added whenever a message carries a name.
	namePenalty = 1
)

// Counter returns the number of tokens text occupies for the given model.
type Counter interface {
	Count(text, model string) int
}

// CounterFunc adapts a plain function to Counter.
type CounterFunc func(text, model string) int

func (f CounterFunc) Count(text, model string) int {
	return f(text, model)
}

// TiktokenCounter counts tokens with the tiktoken BPE encodings, caching one
// encoder per model name.
type TiktokenCounter struct {
	logger *logging.Logger

	mu       sync.Mutex
	encoders map[string]*tiktoken.Tiktoken
}

// NewTiktokenCounter creates a counter. Encodings are loaded lazily on first
// use of each model name.
func NewTiktokenCounter(logger *logging.Logger) *TiktokenCounter {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &TiktokenCounter{
		logger:   logger,
		encoders: make(map[string]*tiktoken.Tiktoken),
	}
}

// Count implements Counter. If no encoding can be loaded at all the text is
// estimated at four bytes per token.
func (c *TiktokenCounter) Count(text, model string) int {
	enc := c.encoder(model)
	if enc == nil {
		return (len(text) + 3) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

func (c *TiktokenCounter) encoder(model string) *tiktoken.Tiktoken {
	c.mu.Lock()
	defer c.mu.Unlock()

	if enc, ok := c.encoders[model]; ok {
		return enc
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		c.logger.Warnf("Model %q not found, using %s encoding", model, FallbackEncoding)
		enc, err = tiktoken.GetEncoding(FallbackEncoding)
		if err != nil {
			c.logger.Errorf("Failed to load %s encoding: %v", FallbackEncoding, err)
			enc = nil
		}
	}
	// Cache failures too so the warning is logged once per model.
	c.encoders[model] = enc
	return enc
}

// CountTranscript estimates the prompt cost of a transcript the way the
// provider bills it: 3 tokens of reply priming, then for every message 3
// tokens of framing plus the tokens of each field value, plus 1 when the
// message has a name.
//
// Tool-call fields (call ids, function names and arguments) are counted as
// additional field values.
func CountTranscript(c Counter, modelName string, transcript model.Transcript) int {
	total := replyPriming
	for _, m := range transcript {
		total += CountMessage(c, modelName, m)
	}
	return total
}

// CountMessage returns the framed cost of a single message.
func CountMessage(c Counter, modelName string, m model.Message) int {
	n := messageFraming
	n += c.Count(string(m.Role), modelName)
	n += c.Count(m.Content, modelName)
	if m.Name != "" {
		n += c.Count(m.Name, modelName) + namePenalty
	}
	if m.ToolCallID != "" {
		n += c.Count(m.ToolCallID, modelName)
	}
	for _, tc := range m.ToolCalls {
		n += c.Count(tc.ID, modelName)
		n += c.Count(tc.Name, modelName)
		n += c.Count(tc.Arguments, modelName)
	}
	return n
}
