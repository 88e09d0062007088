// Package parser turns free-form model output into validated multiple-choice questions.
//
// Expected block grammar, blocks separated by a blank line:
//
//	Q1. <question text>
//	A) <option>
//	B) <option>
//	C) <option>
//	D) <option>
//	Answer: <letter>
//
// Blocks that do not fit are dropped; parsing never fails.
package parser

import (
	"strings"

	"moodquiz-service/internal/domain"
)

const minBlockLines = 6

// Rejection explains why a candidate block was dropped.
type Rejection struct {
	Block  int    `json:"block"`
	Reason string `json:"reason"`
}

// Parse returns every well-formed question in raw, in input order.
func Parse(raw string) []domain.QuestionSpec {
	specs, _ := ParseWithReport(raw)
	return specs
}

// ParseWithReport is Parse plus the list of dropped candidate blocks.
func ParseWithReport(raw string) ([]domain.QuestionSpec, []Rejection) {
	var (
		specs    []domain.QuestionSpec
		rejected []Rejection
	)
	for i, block := range candidateBlocks(raw) {
		spec, reason := parseBlock(block)
		if reason != "" {
			rejected = append(rejected, Rejection{Block: i, Reason: reason})
			continue
		}
		specs = append(specs, spec)
	}
	return specs, rejected
}

// candidateBlocks groups non-blank lines separated by blank lines and keeps the
// groups that start with "Q". Returned lines are trimmed.
func candidateBlocks(raw string) [][]string {
	var (
		blocks  [][]string
		current []string
	)
	flush := func() {
		if len(current) > 0 && strings.HasPrefix(current[0], "Q") {
			blocks = append(blocks, current)
		}
		current = nil
	}
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return blocks
}

func parseBlock(lines []string) (domain.QuestionSpec, string) {
	if len(lines) < minBlockLines {
		return domain.QuestionSpec{}, "fewer than 6 lines"
	}

	text := lines[0]
	if _, after, ok := strings.Cut(lines[0], ". "); ok {
		text = strings.TrimSpace(after)
	}
	if text == "" {
		return domain.QuestionSpec{}, "empty question text"
	}

	options := make(map[string]string, len(domain.OptionLetters))
	for _, line := range lines[1:5] {
		letter, optText, ok := strings.Cut(line, ") ")
		if !ok {
			continue
		}
		options[strings.TrimSpace(letter)] = strings.TrimSpace(optText)
	}

	correct := ""
	if parts := strings.Split(lines[5], ": "); len(parts) > 1 {
		correct = strings.TrimSpace(parts[1])
	}

	spec := domain.QuestionSpec{Text: text, Options: options, CorrectOption: correct}
	if len(options) != len(domain.OptionLetters) {
		return domain.QuestionSpec{}, "options must be exactly A, B, C and D"
	}
	if !spec.Valid() {
		if _, ok := options[correct]; !ok && correct != "" {
			return domain.QuestionSpec{}, "answer letter is not one of the options"
		}
		return domain.QuestionSpec{}, "missing option letter or answer"
	}
	return spec, ""
}
