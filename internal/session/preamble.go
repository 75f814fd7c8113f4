// SPDX-License-Identifier: AGPL-3.0-only
package session

import (
	"fmt"
	"os"
	"strings"

	"github.com/firoagni/ai-development-tutorials/internal/errors"
	"github.com/firoagni/ai-development-tutorials/internal/model"
)

// Names that mark few-shot messages as examples rather than conversation.
const (
	ExampleUser      = "example_user"
	ExampleAssistant = "example_assistant"
)

// Example is one demonstrated question and answer.
type Example struct {
	User      string
	Assistant string
}

// FewShot returns a system instruction followed by the examples as named
// system messages, so the model sees the pattern without treating the
// examples as part of the real conversation.
func FewShot(instruction string, examples ...Example) []model.Message {
	msgs := make([]model.Message, 0, 1+2*len(examples))
	msgs = append(msgs, model.System(instruction))
	for _, ex := range examples {
		msgs = append(msgs,
			model.Message{Role: model.RoleSystem, Name: ExampleUser, Content: ex.User},
			model.Message{Role: model.RoleSystem, Name: ExampleAssistant, Content: ex.Assistant},
		)
	}
	return msgs
}

// DocumentInstruction builds a developer instruction restricting answers to
// the reference text.
func DocumentInstruction(document string) model.Message {
	return model.Developer(fmt.Sprintf(`
You are a sarcastic assistant. You respond to every user question with witty, dry humor and light sarcasm.
You can only answer questions based on the following information. If the information is not in the text, admit it sarcastically and refuse to answer.

<context>
%s
</context>

Never break character. Never use any knowledge outside of the reference content.
`, document))
}

// LoadDocument reads a reference file for DocumentInstruction. Empty files
// are rejected.
func LoadDocument(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read reference file: %w", err)
	}
	if strings.TrimSpace(string(raw)) == "" {
		return "", errors.InvalidInput(fmt.Sprintf("reference file %s is empty", path))
	}
	return string(raw), nil
}
