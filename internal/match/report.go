// Package match implements the fuzzy keyword-matching engine for diarized
// call transcripts.
//
// Given an ordered list of speaker-tagged segments and a set of keywords
// grouped into categories, the engine determines which keywords are
// approximately present in the transcript, attributes each hit to a speaker
// role, and assembles a per-category, per-keyword report with the matched
// segments as evidence.
//
// The engine is pure computation: it performs no I/O, holds no state between
// invocations, and is safe to run concurrently as long as each invocation
// receives its own inputs. A [Matcher] is read-only after construction.
//
// Two matching strategies are supported:
//
//   - Fuzzy ([Matcher.Match]): a combined partial-overlap / token-set
//     similarity score is compared against a threshold. Matches attributed
//     to an unknown speaker are not surfaced in the report.
//   - Containment ([Matcher.MatchContainment]): after space-stripping
//     normalization, a keyword matches when it is a literal substring of the
//     segment text. Every hit is surfaced, including unknown speakers.
//
// Both strategies share one aggregation loop and preserve category and
// keyword input order exactly.
package match

// Role is the semantic speaker role a raw diarization label resolves to.
type Role string

const (
	RoleAgent    Role = "Agent"
	RoleCustomer Role = "Customer"
	RoleUnknown  Role = "Unknown"
)

// RoleMap resolves raw diarization speaker labels (e.g. "Speaker_1") to
// semantic roles. The mapping is deployment configuration, not an engine
// invariant; pass it via [WithRoleMap].
type RoleMap map[string]Role

// Resolve returns the role for label, or [RoleUnknown] when the label has no
// entry.
func (m RoleMap) Resolve(label string) Role {
	if r, ok := m[label]; ok {
		return r
	}
	return RoleUnknown
}

// DefaultRoleMap returns the historical two-speaker mapping: Speaker_1 is the
// agent, Speaker_0 is the customer.
func DefaultRoleMap() RoleMap {
	return RoleMap{
		"Speaker_1": RoleAgent,
		"Speaker_0": RoleCustomer,
	}
}

// Segment is one diarized utterance. Segments are produced by the
// transcription system and consumed read-only by the engine.
type Segment struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Category is a named group of keywords. Keyword order is preserved in the
// report; duplicate keywords are permitted and scored independently.
type Category struct {
	Name     string   `json:"category"`
	Keywords []string `json:"keywords"`
}

// KeywordSet is an ordered list of keyword categories. A slice (rather than a
// map) because report order must equal input order.
type KeywordSet []Category

// Evidence records one segment that matched a keyword. The text is the raw
// (un-normalized) segment text.
type Evidence struct {
	Text    string `json:"text"`
	Speaker string `json:"speaker"`
}

// RoleMatches accumulates the hits attributed to a single role for one
// keyword. The evidence list preserves segment iteration order.
//
// The JSON field name for evidence is "text" for compatibility with the
// historical report shape.
type RoleMatches struct {
	Count    int        `json:"count"`
	Evidence []Evidence `json:"text"`
}

// CountBySpeaker splits a keyword's matches between the two surfaced roles.
// Unknown-role matches are deliberately absent from the fuzzy report; use
// [Matcher.MatchContainment] to observe them.
type CountBySpeaker struct {
	Agent    RoleMatches `json:"Agent"`
	Customer RoleMatches `json:"Customer"`
}

// KeywordMatches is the per-keyword entry of a [Report]. Every non-blank
// keyword of the input set appears exactly once, even with zero matches.
type KeywordMatches struct {
	Keyword        string         `json:"keyword"`
	CountBySpeaker CountBySpeaker `json:"countBySpeaker"`
}

// CategoryMatches groups the keyword results of one category, in keyword
// input order.
type CategoryMatches struct {
	Category string           `json:"category"`
	Keywords []KeywordMatches `json:"keywords"`
}

// Report is the ordered fuzzy-mode match report. Caller-context metadata
// (conversation id, project id, builder name) is attached by the response
// layer, not by the engine.
type Report []CategoryMatches

// ContainmentRecord is one hit of the containment strategy: a (category,
// keyword, segment) triple with the resolved speaker role. Count is always 1;
// consumers aggregate rows themselves (the historical spreadsheet export
// shape).
type ContainmentRecord struct {
	Category     string `json:"category"`
	Keyword      string `json:"keyword"`
	Speaker      Role   `json:"speaker"`
	SpeakerLabel string `json:"speaker_label"`
	Count        int    `json:"count"`
	MatchedText  string `json:"matched_text"`
}
