package persona

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/interviewd/internal/provider"
)

// Generator is the text-generation capability an Instance delegates to.
// *provider.Gateway satisfies it.
type Generator interface {
	Generate(ctx context.Context, frags []provider.Fragment) (*provider.Result, error)
}

// PromptInput carries the session attributes a persona needs to frame
// its prompts. Resume may be empty.
type PromptInput struct {
	Position   string
	Difficulty string
	Resume     string
}

// Instance is the cached, stateless behavior object for one persona
// kind. All session context arrives as explicit arguments; an Instance
// carries no session-specific mutable state and is shared across
// sessions for the process lifetime.
type Instance struct {
	tmpl Template
	// intro is pre-rendered once at construction.
	intro string
}

func newInstance(tmpl Template) *Instance {
	return &Instance{
		tmpl:  tmpl,
		intro: tmpl.Intro,
	}
}

func (i *Instance) Kind() Kind             { return i.tmpl.Kind }
func (i *Instance) Descriptor() Descriptor { return i.tmpl.Descriptor }
func (i *Instance) VoiceProfile() string   { return i.tmpl.VoiceProfile }

// Intro returns the persona's pre-rendered self-introduction.
func (i *Instance) Intro() string { return i.intro }

// Preamble renders the persona's system preamble for a session.
func (i *Instance) Preamble(in PromptInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, i.tmpl.Preamble, in.Position, in.Difficulty)
	if in.Resume != "" {
		b.WriteString("\n\nCandidate resume (for context):\n")
		b.WriteString(in.Resume)
	}
	return b.String()
}

// GenerateQuestions asks the model for up to count opening questions for
// this persona's phase. The result is never empty on success.
func (i *Instance) GenerateQuestions(ctx context.Context, gen Generator, in PromptInput, count int) ([]string, error) {
	if count < 1 {
		count = 1
	}
	if count > 5 {
		count = 5
	}

	frags := []provider.Fragment{
		{Role: provider.RoleSystem, Content: i.Preamble(in)},
		{Role: provider.RoleUser, Content: fmt.Sprintf(
			"Produce %d opening interview questions for this round, one per "+
				"line, numbered. No preamble, no commentary.", count)},
	}

	res, err := gen.Generate(ctx, frags)
	if err != nil {
		return nil, fmt.Errorf("generating questions: %w", err)
	}

	questions := parseQuestionList(res.Text, count)
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoQuestions, truncate(res.Text, 120))
	}
	return questions, nil
}

// GenerateResponse reacts to the latest candidate message in context.
func (i *Instance) GenerateResponse(ctx context.Context, gen Generator, in PromptInput, history []provider.Fragment) (string, error) {
	frags := make([]provider.Fragment, 0, len(history)+1)
	frags = append(frags, provider.Fragment{Role: provider.RoleSystem, Content: i.Preamble(in)})
	frags = append(frags, history...)

	res, err := gen.Generate(ctx, frags)
	if err != nil {
		return "", fmt.Errorf("generating response: %w", err)
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return "", ErrMalformedReply
	}
	return text, nil
}

// feedbackReply is the JSON shape requested from the model.
type feedbackReply struct {
	Score      float64  `json:"score"`
	Commentary string   `json:"commentary"`
	Concerns   []string `json:"concerns"`
}

// GenerateFeedback produces this persona's structured assessment over the
// phase transcript. It either returns a complete FeedbackEntry or fails
// explicitly; there is no partial or best-effort result.
func (i *Instance) GenerateFeedback(ctx context.Context, gen Generator, in PromptInput, history []provider.Fragment) (FeedbackEntry, error) {
	frags := make([]provider.Fragment, 0, len(history)+2)
	frags = append(frags, provider.Fragment{Role: provider.RoleSystem, Content: i.Preamble(in)})
	frags = append(frags, history...)
	frags = append(frags, provider.Fragment{Role: provider.RoleUser, Content: `The round is over. ` +
		`Assess the candidate's performance in this round only. Reply with a single JSON object ` +
		`and nothing else: {"score": <0-100>, "commentary": "<2-4 sentences>", "concerns": ["<specific issue>", ...]}`})

	res, err := gen.Generate(ctx, frags)
	if err != nil {
		return FeedbackEntry{}, fmt.Errorf("generating feedback: %w", err)
	}

	reply, err := parseFeedbackReply(res.Text)
	if err != nil {
		return FeedbackEntry{}, err
	}

	return FeedbackEntry{
		Kind:       i.tmpl.Kind,
		Score:      reply.Score,
		Commentary: reply.Commentary,
		Concerns:   reply.Concerns,
	}, nil
}

// parseFeedbackReply extracts the first JSON object from a model reply.
// Models often wrap JSON in prose or code fences; everything outside the
// outermost braces is ignored.
func parseFeedbackReply(text string) (feedbackReply, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return feedbackReply{}, fmt.Errorf("%w: no JSON object in %q", ErrMalformedReply, truncate(text, 120))
	}

	var reply feedbackReply
	if err := json.Unmarshal([]byte(text[start:end+1]), &reply); err != nil {
		return feedbackReply{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if reply.Score < 0 || reply.Score > 100 {
		return feedbackReply{}, fmt.Errorf("%w: %v", ErrScoreOutOfRange, reply.Score)
	}
	if strings.TrimSpace(reply.Commentary) == "" {
		return feedbackReply{}, fmt.Errorf("%w: empty commentary", ErrMalformedReply)
	}
	return reply, nil
}

// parseQuestionList splits a numbered or bulleted list into questions.
// A reply with no recognizable list is treated as a single question.
func parseQuestionList(text string, max int) []string {
	var questions []string
	for _, line := range strings.Split(text, "\n") {
		q := strings.TrimSpace(line)
		q = strings.TrimLeft(q, "0123456789.)- \t")
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		questions = append(questions, q)
		if len(questions) == max {
			break
		}
	}
	if len(questions) == 0 {
		if t := strings.TrimSpace(text); t != "" {
			questions = []string{t}
		}
	}
	return questions
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
