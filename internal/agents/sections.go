package agents

import "strings"

// ParseOutcome classifies how much structure was recovered from a
// two-section model reply.
type ParseOutcome int

const (
	// ParseFailed means no usable body text was found.
	ParseFailed ParseOutcome = iota
	// ParsePartial means the body was found but one marker was missing.
	ParsePartial
	// ParseComplete means both markers were present in order.
	ParseComplete
)

func (o ParseOutcome) String() string {
	switch o {
	case ParseComplete:
		return "complete"
	case ParsePartial:
		return "partial"
	default:
		return "failed"
	}
}

// MarshalText lets ParseOutcome appear as a string in JSON results.
func (o ParseOutcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// Sections is the parsed form of a reply with a body section followed by a
// reasoning section.
type Sections struct {
	Body      string       `json:"body"`
	Reasoning string       `json:"reasoning"`
	Outcome   ParseOutcome `json:"outcome"`
}

// Usable reports whether a body was recovered.
func (s Sections) Usable() bool { return s.Outcome != ParseFailed }

// SectionGrammar names the two literal headers of a reply. The Body header
// is required; Reasoning is optional.
//
//	both headers       -> body between them, reasoning after Reasoning
//	Body header only   -> everything after it is the body, reasoning empty
//	no Body header     -> failed
type SectionGrammar struct {
	Body      string
	Reasoning string
}

// Parse splits text according to the grammar. Headers match at their first
// occurrence; surrounding whitespace and markdown emphasis are trimmed.
func (g SectionGrammar) Parse(text string) Sections {
	bodyAt := strings.Index(text, g.Body)
	if bodyAt < 0 {
		return Sections{Outcome: ParseFailed}
	}
	start := bodyAt + len(g.Body)

	var s Sections
	if i := strings.Index(text[start:], g.Reasoning); i >= 0 {
		reasonAt := start + i
		s = Sections{
			Body:      clean(text[start:reasonAt]),
			Reasoning: clean(text[reasonAt+len(g.Reasoning):]),
			Outcome:   ParseComplete,
		}
	} else {
		s = Sections{Body: clean(text[start:]), Outcome: ParsePartial}
	}
	if s.Body == "" {
		s.Outcome = ParseFailed
	}
	return s
}

// clean trims whitespace and the markdown emphasis models wrap headers in.
func clean(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "*_#"))
}
