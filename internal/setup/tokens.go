package setup

import "strings"

// Choice tokens sent by the inline buttons the presenter renders. They are
// part of the core's vocabulary, not locale strings, so they stay fixed.
const (
	// TokenStart confirms the welcome message and begins collection.
	TokenStart = "start"
	// TokenCreateMaterial triggers material creation after focus statements
	// are assembled.
	TokenCreateMaterial = "create"
)

// TokenSet holds the locale-specific flow-control vocabulary: the "done with
// this step" tokens and the selection-reset tokens. The set is configurable
// so the core stays language-agnostic.
type TokenSet struct {
	ready map[string]struct{}
	reset map[string]struct{}
}

// DefaultReadyTokens is the default "done with this step" vocabulary,
// merging the Russian interview vocabulary with English equivalents.
var DefaultReadyTokens = []string{
	"готов", "дальше", "готово", "продолжить", "далее",
	"ready", "next", "done",
}

// DefaultResetTokens is the default selection-reset vocabulary.
var DefaultResetTokens = []string{"сброс", "заново", "reset"}

// NewTokenSet builds a TokenSet from ready and reset token lists. Tokens are
// case/whitespace-normalized; empty entries are dropped.
func NewTokenSet(ready, reset []string) TokenSet {
	return TokenSet{
		ready: normalizeTokens(ready),
		reset: normalizeTokens(reset),
	}
}

// DefaultTokenSet returns the default flow-control vocabulary.
func DefaultTokenSet() TokenSet {
	return NewTokenSet(DefaultReadyTokens, DefaultResetTokens)
}

// IsReady reports whether the input is a flow-control token signalling the
// user wants to leave the current collection loop.
func (t TokenSet) IsReady(input string) bool {
	_, ok := t.ready[normalizeText(input)]
	return ok
}

// IsReset reports whether the input asks to restart the task selection.
func (t TokenSet) IsReset(input string) bool {
	_, ok := t.reset[normalizeText(input)]
	return ok
}

// ParseTokenList splits a comma-separated token list from configuration.
func ParseTokenList(raw string) []string {
	var tokens []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			tokens = append(tokens, trimmed)
		}
	}
	return tokens
}

func normalizeTokens(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		if normalized := normalizeText(tok); normalized != "" {
			set[normalized] = struct{}{}
		}
	}
	return set
}
