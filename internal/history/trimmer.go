// SPDX-License-Identifier: AGPL-3.0-only

// Package history keeps a conversation transcript under a token budget.
package history

import (
	"github.com/firoagni/ai-development-tutorials/internal/logging"
	"github.com/firoagni/ai-development-tutorials/internal/model"
	"github.com/firoagni/ai-development-tutorials/internal/tokens"
)

// minMessages is the floor trimming never goes below: the instruction
// message and the newest user message.
const minMessages = 2

// Budget bounds prompt plus response size.
type Budget struct {
	// MaxResponseTokens is the headroom reserved for the next generation.
	MaxResponseTokens int
	// TokenLimit is the hard ceiling for prompt + response.
	TokenLimit int
}

// Report describes what a Trim call did.
type Report struct {
	Before     int // token estimate before trimming
	After      int // token estimate of the returned transcript
	Evicted    []model.Message
	Iterations int
	OverBudget bool // still over budget after trimming
}

// Trimmed reports whether any message was evicted.
func (r Report) Trimmed() bool {
	return len(r.Evicted) > 0
}

// Trimmer evicts the oldest exchanges from a transcript until it fits a
// Budget.
type Trimmer struct {
	Counter tokens.Counter
	Model   string
	Budget  Budget
	Logger  *logging.Logger
}

// NewTrimmer creates a Trimmer for the given model.
func NewTrimmer(counter tokens.Counter, modelName string, budget Budget, logger *logging.Logger) *Trimmer {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &Trimmer{Counter: counter, Model: modelName, Budget: budget, Logger: logger}
}

// Trim returns a transcript whose estimated cost plus the reserved response
// headroom fits the token limit. The input slice is not modified.
//
// The leading instruction message and the newest message are never evicted,
// so a transcript of two or more messages never shrinks below two. When even
// that minimum exceeds the budget the minimum is returned anyway and the
// report is flagged OverBudget.
func (t *Trimmer) Trim(transcript model.Transcript) (model.Transcript, Report) {
	logger := t.Logger
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	total := tokens.CountTranscript(t.Counter, t.Model, transcript)
	report := Report{Before: total, After: total}

	if !t.exceeds(total) || len(transcript) <= minMessages {
		report.OverBudget = t.exceeds(total)
		if report.OverBudget {
			logger.Warnf("Transcript of %d messages uses %d tokens, over the %d token limit with %d reserved for the response",
				len(transcript), total, t.Budget.TokenLimit, t.Budget.MaxResponseTokens)
		}
		return transcript, report
	}

	out := transcript.Clone()
	for t.exceeds(total) && len(out) > minMessages {
		end := evictionEnd(out)
		evicted := out[1:end]
		for _, m := range evicted {
			logger.Debugf("Trimming %s message: %.80q", m.Role, m.Content)
		}
		report.Evicted = append(report.Evicted, evicted...)
		out = append(out[:1], out[end:]...)
		report.Iterations++
		total = tokens.CountTranscript(t.Counter, t.Model, out)
	}

	report.After = total
	report.OverBudget = t.exceeds(total)
	logger.Infof("Trimmed %d messages from conversation history (%d -> %d tokens)",
		len(report.Evicted), report.Before, report.After)
	if report.OverBudget {
		logger.Warnf("Conversation still uses %d tokens after trimming, over the %d token limit with %d reserved for the response",
			total, t.Budget.TokenLimit, t.Budget.MaxResponseTokens)
	}
	return out, report
}

func (t *Trimmer) exceeds(total int) bool {
	return total+t.Budget.MaxResponseTokens > t.Budget.TokenLimit
}

// evictionEnd returns the exclusive end of the oldest evictable unit, which
// starts at index 1. A unit is a user message followed by everything up to
// the next user message: in a plain chat that is one (user, assistant) pair,
// in a tool-augmented chat it also covers the assistant tool-call turns and
// tool results, so requests and their results are evicted together. The
// newest message is never part of a unit.
func evictionEnd(transcript model.Transcript) int {
	last := len(transcript) - 1
	end := 2
	for end < last && transcript[end].Role != model.RoleUser {
		end++
	}
	if end > last {
		end = last
	}
	return end
}
