// Package terminal drives a dialogue session from an interactive terminal.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"

	"github.com/besafe/digital-sister/internal/dialogue"
)

const (
	doneLabel     = "Done"
	selectedMark  = "✓ "
	speakerPrefix = "💗 "
)

// Asker collects one answer from the person.
type Asker interface {
	Choose(label string, items []string) (int, error)
	Ask(label string, allowEmpty bool) (string, error)
}

// PromptAsker asks through promptui on the process terminal.
type PromptAsker struct{}

func (PromptAsker) Choose(label string, items []string) (int, error) {
	sel := promptui.Select{
		Label:        label,
		Items:        items,
		Size:         len(items),
		HideSelected: true,
	}
	i, _, err := sel.Run()
	return i, err
}

func (PromptAsker) Ask(label string, allowEmpty bool) (string, error) {
	p := promptui.Prompt{Label: label}
	if !allowEmpty {
		p.Validate = func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("please write something")
			}
			return nil
		}
	}
	return p.Run()
}

// Chat renders a session's messages and turns answers into events.
type Chat struct {
	session *dialogue.Session
	asker   Asker
	out     io.Writer

	text  *color.Color
	badge *color.Color
	music *color.Color
	fail  *color.Color
	hint  *color.Color
}

func NewChat(session *dialogue.Session, asker Asker, out io.Writer, colorEnabled bool) *Chat {
	c := &Chat{
		session: session,
		asker:   asker,
		out:     out,
		text:    color.New(color.FgMagenta),
		badge:   color.New(color.FgGreen, color.Bold),
		music:   color.New(color.FgCyan),
		fail:    color.New(color.FgRed),
		hint:    color.New(color.FgYellow),
	}
	if !colorEnabled {
		for _, col := range []*color.Color{c.text, c.badge, c.music, c.fail, c.hint} {
			col.DisableColor()
		}
	}
	return c
}

// Run plays the conversation until it closes. Interrupting a prompt ends
// the chat without an error.
func (c *Chat) Run(ctx context.Context) error {
	turn, err := c.session.Step(ctx, dialogue.Start())
	if err != nil {
		return err
	}

	for {
		c.Render(turn.Messages)
		if turn.Prompt == nil {
			return nil
		}

		ev, err := c.nextEvent(turn.Prompt)
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read answer: %w", err)
		}

		next, err := c.session.Step(ctx, ev)
		var ie *dialogue.InputError
		switch {
		case errors.As(err, &ie):
			c.hint.Fprintln(c.out, ie.Hint)
			turn.Messages = nil
			continue
		case errors.Is(err, dialogue.ErrInvalidInput):
			turn.Messages = nil
			continue
		case err != nil:
			return err
		}
		turn = next
	}
}

// Render writes messages to the output, colored by kind.
func (c *Chat) Render(messages []dialogue.Message) {
	for _, m := range messages {
		switch m.Kind {
		case dialogue.MessageEmailBadge:
			c.badge.Fprintln(c.out, m.Text)
		case dialogue.MessageMusic:
			c.music.Fprintln(c.out, m.Text)
		case dialogue.MessageError:
			c.fail.Fprintln(c.out, m.Text)
		default:
			c.text.Fprintln(c.out, speakerPrefix+m.Text)
		}
	}
}

func (c *Chat) nextEvent(p *dialogue.Prompt) (dialogue.Event, error) {
	switch p.Mode {
	case dialogue.ModeSingleChoice:
		i, err := c.asker.Choose("Choose", optionLabels(p.Options, nil))
		if err != nil {
			return dialogue.Event{}, err
		}
		if i < 0 || i >= len(p.Options) {
			return dialogue.Event{}, fmt.Errorf("choice %d out of range", i)
		}
		return dialogue.Choose(p.Options[i].Key), nil

	case dialogue.ModeMultiChoice:
		items := append(optionLabels(p.Options, p.Selected), doneLabel)
		i, err := c.asker.Choose("Pick all that fit, then Done", items)
		if err != nil {
			return dialogue.Event{}, err
		}
		if i == len(p.Options) {
			return dialogue.Done(), nil
		}
		if i < 0 || i > len(p.Options) {
			return dialogue.Event{}, fmt.Errorf("choice %d out of range", i)
		}
		return dialogue.Toggle(p.Options[i].Key), nil

	case dialogue.ModeText:
		s, err := c.asker.Ask("You", false)
		if err != nil {
			return dialogue.Event{}, err
		}
		return dialogue.Text(s), nil

	case dialogue.ModeOptionalText:
		s, err := c.asker.Ask("You (Enter to skip)", true)
		if err != nil {
			return dialogue.Event{}, err
		}
		if strings.TrimSpace(s) == "" {
			return dialogue.Skip(), nil
		}
		return dialogue.Text(s), nil
	}
	return dialogue.Event{}, fmt.Errorf("state %s takes no input", p.State)
}

// optionLabels marks the keys in selected.
func optionLabels(options []dialogue.Option, selected []string) []string {
	labels := make([]string, 0, len(options)+1)
	for _, o := range options {
		label := o.Label
		for _, key := range selected {
			if key == o.Key {
				label = selectedMark + label
				break
			}
		}
		labels = append(labels, label)
	}
	return labels
}
