// SPDX-License-Identifier: AGPL-3.0-only

// Package chat is the terminal front end: an interactive loop and a batch
// runner over a session.
package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/firoagni/ai-development-tutorials/internal/agent"
	"github.com/firoagni/ai-development-tutorials/internal/session"
)

// Asker is the part of *session.Session the front end drives.
type Asker interface {
	Ask(ctx context.Context, question string) session.Outcome
	AskStream(ctx context.Context, question string, onChunk func(agent.Chunk)) session.Outcome
}

// Options tunes the output.
type Options struct {
	// Stream prints the answer as it arrives.
	Stream bool
	// ShowUsage prints the token counters after every answer.
	ShowUsage bool
	// ShowTrimming reports messages evicted from the history.
	ShowTrimming bool
	// Prompt defaults to "Enter your question: ".
	Prompt string
}

// REPL reads questions line by line and prints answers until the input
// ends or the user types exit.
type REPL struct {
	asker  Asker
	in     io.Reader
	out    io.Writer
	opts   Options
	styles styles
}

// New creates a REPL reading from in and writing to out.
func New(asker Asker, in io.Reader, out io.Writer, opts Options) *REPL {
	if opts.Prompt == "" {
		opts.Prompt = "Enter your question: "
	}
	return &REPL{asker: asker, in: in, out: out, opts: opts, styles: newStyles(out)}
}

// Run loops until exit, end of input or context cancellation. A failed
// question is reported and the loop continues.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, r.styles.notice.Render("Type 'exit' to quit."))
	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(r.out, r.styles.prompt.Render(r.opts.Prompt))
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if strings.EqualFold(question, "exit") {
			fmt.Fprintln(r.out, r.styles.notice.Render("Goodbye!"))
			return nil
		}
		r.answer(ctx, question)
	}
}

// RunBatch asks each question in order, printing question and answer.
// It returns the number of questions that failed.
func (r *REPL) RunBatch(ctx context.Context, questions []string) int {
	failed := 0
	for _, q := range questions {
		if ctx.Err() != nil {
			return failed + 1
		}
		fmt.Fprintf(r.out, "%s %s\n", r.styles.prompt.Render("Question:"), q)
		if !r.answer(ctx, q) {
			failed++
		}
	}
	return failed
}

func (r *REPL) answer(ctx context.Context, question string) bool {
	var out session.Outcome
	if r.opts.Stream {
		p := &progress{out: r.out, styles: r.styles}
		out = r.asker.AskStream(ctx, question, p.render)
		fmt.Fprintln(r.out)
	} else {
		out = r.asker.Ask(ctx, question)
		if out.Err == nil {
			if out.Reasoning != "" {
				fmt.Fprintln(r.out, r.styles.label.Render("Thinking process:"))
				fmt.Fprintln(r.out, r.styles.thinking.Render(out.Reasoning))
			}
			fmt.Fprintln(r.out, r.styles.label.Render("Answer from AI:"))
			fmt.Fprintln(r.out, r.styles.answer.Render(out.Answer))
		}
	}

	if r.opts.ShowTrimming && out.Trim.Trimmed() {
		fmt.Fprintln(r.out, r.styles.notice.Render(fmt.Sprintf(
			"Trimmed %d messages from conversation history (%d -> %d tokens)",
			len(out.Trim.Evicted), out.Trim.Before, out.Trim.After)))
	}
	if out.Err != nil {
		fmt.Fprintln(r.out, r.styles.err.Render(fmt.Sprintf("Error getting answer from AI: %v", out.Err)))
		return false
	}
	if r.opts.ShowUsage {
		fmt.Fprintln(r.out, r.styles.usageLine(out.Usage))
	}
	fmt.Fprintln(r.out, r.styles.rule(80))
	return true
}

// progress prints streamed chunks, opening a labelled section whenever the
// model switches between thinking, writing code and answering.
type progress struct {
	out     io.Writer
	styles  styles
	section agent.ChunkKind
}

func (p *progress) render(c agent.Chunk) {
	switch c.Kind {
	case agent.ChunkReasoningDelta:
		p.open(c.Kind, "Thinking .... :")
		fmt.Fprint(p.out, p.styles.thinking.Render(c.Text))
	case agent.ChunkToolCodeDelta:
		p.open(c.Kind, "Generated code:")
		fmt.Fprint(p.out, p.styles.code.Render(c.Text))
	case agent.ChunkToolCallInterpreting:
		p.notice("Code is being interpreted...")
	case agent.ChunkToolCallCompleted:
		if c.ToolCall == nil {
			p.notice("Code interpretation complete.")
		}
	case agent.ChunkFunctionCallStarted:
		p.notice(fmt.Sprintf("Calling %s...", c.ToolCall.Name))
	case agent.ChunkTextDelta:
		p.open(c.Kind, "Answer from AI:")
		fmt.Fprint(p.out, p.styles.answer.Render(c.Text))
	}
}

func (p *progress) open(kind agent.ChunkKind, label string) {
	if p.section == kind {
		return
	}
	if p.section != "" {
		fmt.Fprintln(p.out)
	}
	p.section = kind
	fmt.Fprintln(p.out, p.styles.label.Render(label))
}

func (p *progress) notice(text string) {
	if p.section != "" {
		fmt.Fprintln(p.out)
	}
	p.section = ""
	fmt.Fprintln(p.out, p.styles.notice.Render(text))
}
