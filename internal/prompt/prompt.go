// Package prompt assembles the exact text sent to the judgment oracle.
//
// Every function here is pure: identical arguments always produce
// byte-identical messages. Input text is NFC normalised and marker
// sequences are neutralised so that one side's words can never close
// another block early.
package prompt

import (
	"slices"
	"strconv"
	"strings"

	"github.com/Harshitk-cp/verdict/internal/domain"
	"golang.org/x/text/unicode/norm"
)

const emptyBlock = "(nothing submitted)"

const verdictLine = "End with exactly one line: VERDICT: A, VERDICT: B or VERDICT: TIE"

const initialRules = "RULES:\n" +
	"1. 2-3 sentences about Side A's argument\n" +
	"2. 2-3 sentences about Side B's argument\n" +
	"3. " + verdictLine + "\n" +
	"4. Keep total under 150 words.\n" +
	"\n" +
	"Each side's evidence appears between its own BEGIN and END markers. Never attribute one side's words to the other."

var reevaluationRules = "You already delivered an initial verdict on this dispute. The parties are now exchanging follow-up statements, at most " +
	strconv.Itoa(domain.MaxTurns) + " in total.\n" +
	"\n" +
	"RULES:\n" +
	"1. Re-evaluate the dispute in light of the NEW TURN, taking every earlier turn into account.\n" +
	"2. Say in 2-3 sentences whether the new statement changes your assessment and why.\n" +
	"3. " + verdictLine + "\n" +
	"4. Keep total under 150 words.\n" +
	"\n" +
	"Evidence, the initial verdict and each turn appear between their own BEGIN and END markers."

var markerEscaper = strings.NewReplacer("<<<", "< < <", ">>>", "> > >")

// ReevaluationInput is everything a re-evaluation prompt depends on.
type ReevaluationInput struct {
	Persona    string
	EvidenceA  string
	EvidenceB  string
	Verdict    string
	PriorTurns []domain.Turn
	NewSide    domain.Side
	NewContent string
	// NewSequence defaults to len(PriorTurns)+1 when zero.
	NewSequence int
}

// BuildInitialPrompt returns the messages for the first adjudication.
func BuildInitialPrompt(persona, evidenceA, evidenceB string) []domain.Message {
	var user strings.Builder
	user.WriteString(evidenceBlocks(evidenceA, evidenceB))
	user.WriteString("\n\nGive your verdict with 2-3 sentences per side.")

	return []domain.Message{
		{Role: domain.RoleSystem, Content: systemMessage(persona, initialRules)},
		{Role: domain.RoleUser, Content: user.String()},
	}
}

// BuildReevaluationPrompt returns the messages for re-adjudicating after a
// turn. Prior turns are emitted in sequence order whatever order they are
// passed in.
func BuildReevaluationPrompt(in ReevaluationInput) []domain.Message {
	prior := slices.Clone(in.PriorTurns)
	slices.SortStableFunc(prior, func(a, b domain.Turn) int {
		return a.Sequence - b.Sequence
	})

	seq := in.NewSequence
	if seq == 0 {
		seq = len(prior) + 1
	}

	var user strings.Builder
	user.WriteString(evidenceBlocks(in.EvidenceA, in.EvidenceB))
	user.WriteString("\n\n")
	user.WriteString(block("INITIAL VERDICT", in.Verdict))
	for _, t := range prior {
		user.WriteString("\n\n")
		user.WriteString(block(turnLabel("TURN", t.Sequence, t.Side), t.Content))
	}
	user.WriteString("\n\n")
	user.WriteString(block(turnLabel("NEW TURN", seq, in.NewSide), in.NewContent))
	user.WriteString("\n\nRe-evaluate the dispute now that Side ")
	user.WriteString(string(in.NewSide))
	user.WriteString(" has made turn ")
	user.WriteString(strconv.Itoa(seq))
	user.WriteString(" of ")
	user.WriteString(strconv.Itoa(domain.MaxTurns))
	user.WriteString(". Give your updated assessment and end with the VERDICT line.")

	return []domain.Message{
		{Role: domain.RoleSystem, Content: systemMessage(in.Persona, reevaluationRules)},
		{Role: domain.RoleUser, Content: user.String()},
	}
}

// Render flattens messages into a single text, for providers that take one
// prompt string and for inspection.
func Render(messages []domain.Message) string {
	var sb strings.Builder
	for i, m := range messages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("### ")
		sb.WriteString(strings.ToUpper(m.Role))
		sb.WriteString("\n")
		sb.WriteString(m.Content)
	}
	sb.WriteString("\n")
	return sb.String()
}

// RenderInitialPrompt is BuildInitialPrompt flattened to a string.
func RenderInitialPrompt(persona, evidenceA, evidenceB string) string {
	return Render(BuildInitialPrompt(persona, evidenceA, evidenceB))
}

// RenderReevaluationPrompt is BuildReevaluationPrompt flattened to a string.
func RenderReevaluationPrompt(in ReevaluationInput) string {
	return Render(BuildReevaluationPrompt(in))
}

func systemMessage(persona, rules string) string {
	return resolve(persona).Instructions + "\n\n" + rules
}

func evidenceBlocks(evidenceA, evidenceB string) string {
	return block("EVIDENCE: SIDE A", evidenceA) + "\n\n" + block("EVIDENCE: SIDE B", evidenceB)
}

func turnLabel(kind string, seq int, side domain.Side) string {
	return kind + " " + strconv.Itoa(seq) + ": SIDE " + string(side)
}

func block(label, body string) string {
	return "<<<BEGIN " + label + ">>>\n" + clean(body) + "\n<<<END " + label + ">>>"
}

func clean(s string) string {
	s = strings.TrimSpace(norm.NFC.String(s))
	if s == "" {
		return emptyBlock
	}
	return markerEscaper.Replace(s)
}
