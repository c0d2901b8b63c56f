// Package persona defines the fixed set of interviewer personas and the
// process-wide registry that caches one behavior instance per kind.
//
// Personas are configuration variants of a single mechanism: each kind
// differs only in its preamble template, turn budget, assessment weight
// and voice profile. There is no per-kind code path.
package persona

import (
	"fmt"
)

// Kind identifies one interviewer persona.
type Kind string

const (
	KindTechnical  Kind = "technical"
	KindBehavioral Kind = "behavioral"
	KindHR         Kind = "hr"
	KindProduct    Kind = "product"
	KindFinal      Kind = "final"
)

// AllKinds returns every persona kind in default sequence order.
func AllKinds() []Kind {
	return []Kind{KindTechnical, KindBehavioral, KindHR, KindProduct, KindFinal}
}

// ParseKind validates a kind string.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	switch k {
	case KindTechnical, KindBehavioral, KindHR, KindProduct, KindFinal:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// DescriptorOf returns the static descriptor for a kind.
func DescriptorOf(k Kind) (Descriptor, bool) {
	tmpl, ok := templates[k]
	return tmpl.Descriptor, ok
}

// Descriptor is the static, immutable description of one persona kind.
// One descriptor per kind, shared read-only across all sessions.
type Descriptor struct {
	Kind        Kind   `json:"kind"`
	RoleName    string `json:"role_name"`
	Description string `json:"description"`
	// SequencePos is the persona's position in the default phase order.
	SequencePos int `json:"sequence_pos"`
}

// Template parameterizes the shared persona mechanism for one kind.
type Template struct {
	Descriptor
	// Preamble is the system-prompt template. It receives the target
	// position, the difficulty level and optional resume context.
	Preamble string
	// Intro is a short self-introduction rendered once per process.
	Intro string
	// VoiceProfile keys any external voice rendering; unused by the core.
	VoiceProfile string
}

// FeedbackEntry is one persona's structured assessment of the candidate,
// produced once when its phase ends.
type FeedbackEntry struct {
	Kind Kind `json:"kind"`
	// Score is the persona's sub-score on a 0-100 scale.
	Score float64 `json:"score"`
	// Commentary is free-text reasoning behind the score.
	Commentary string `json:"commentary"`
	// Concerns flags specific issues observed during the phase.
	Concerns []string `json:"concerns"`
}

// templates holds the fixed persona set. Ordering weight is the
// SequencePos field; DefaultSequence derives from it.
var templates = map[Kind]Template{
	KindTechnical: {
		Descriptor: Descriptor{
			Kind:        KindTechnical,
			RoleName:    "Technical Interviewer",
			Description: "Probes engineering depth: systems, debugging, trade-offs.",
			SequencePos: 0,
		},
		Preamble: "You are a senior engineer conducting the technical round of an " +
			"interview for the position of %s (difficulty: %s). Ask concrete " +
			"questions about systems the candidate has built, debugging war " +
			"stories and design trade-offs. Stay on one topic per question and " +
			"keep questions short.",
		Intro:        "Hi, I'm your technical interviewer. Let's talk about what you've built.",
		VoiceProfile: "voice-technical",
	},
	KindBehavioral: {
		Descriptor: Descriptor{
			Kind:        KindBehavioral,
			RoleName:    "Behavioral Interviewer",
			Description: "Explores collaboration, conflict and ownership through past situations.",
			SequencePos: 1,
		},
		Preamble: "You are conducting the behavioral round of an interview for the " +
			"position of %s (difficulty: %s). Use situation-based questions about " +
			"teamwork, conflict and ownership. Ask for specific examples, not " +
			"hypotheticals.",
		Intro:        "Hello, I'll be asking about how you work with others.",
		VoiceProfile: "voice-behavioral",
	},
	KindHR: {
		Descriptor: Descriptor{
			Kind:        KindHR,
			RoleName:    "HR Interviewer",
			Description: "Covers motivation, expectations and culture fit.",
			SequencePos: 2,
		},
		Preamble: "You are an HR interviewer for the position of %s (difficulty: %s). " +
			"Ask about motivation for the role, expectations, and working style. " +
			"Be warm and professional.",
		Intro:        "Hi there, I'd like to learn what brings you to this role.",
		VoiceProfile: "voice-hr",
	},
	KindProduct: {
		Descriptor: Descriptor{
			Kind:        KindProduct,
			RoleName:    "Product Interviewer",
			Description: "Tests product sense, prioritization and user empathy.",
			SequencePos: 3,
		},
		Preamble: "You are a product manager interviewing a candidate for the " +
			"position of %s (difficulty: %s). Ask about prioritization, user " +
			"empathy and how the candidate connects engineering work to product " +
			"outcomes.",
		Intro:        "Hello, let's talk about the products you've shipped.",
		VoiceProfile: "voice-product",
	},
	KindFinal: {
		Descriptor: Descriptor{
			Kind:        KindFinal,
			RoleName:    "Closing Interviewer",
			Description: "Wraps up, answers candidate questions and closes the loop.",
			SequencePos: 4,
		},
		Preamble: "You are closing out an interview for the position of %s " +
			"(difficulty: %s). Summarize the conversation so far briefly, invite " +
			"any remaining questions from the candidate, and end on a clear, " +
			"courteous note.",
		Intro:        "We're almost done. Let me wrap things up.",
		VoiceProfile: "voice-final",
	},
}
