package security

import "strings"

type Verdict int

const (
	// VerdictNeutral: nem allowlist nem blocklist.
	VerdictNeutral Verdict = iota
	VerdictAllowed
	VerdictBlocked
)

func (v Verdict) String() string {
	switch v {
	case VerdictAllowed:
		return "allowed"
	case VerdictBlocked:
		return "blocked"
	default:
		return "neutral"
	}
}

type Classifier struct {
	allow        []string
	block        []string
	placeholders map[string]struct{}
}

func NewClassifier(rules Rules) *Classifier {
	c := &Classifier{
		allow:        dropEmpty(normalize(rules.Allow)),
		block:        dropEmpty(normalize(rules.Block)),
		placeholders: make(map[string]struct{}, len(rules.Placeholders)),
	}
	for _, p := range normalize(rules.Placeholders) {
		c.placeholders[p] = struct{}{}
	}
	// UA vazio é sempre placeholder
	c.placeholders[""] = struct{}{}
	return c
}

// Classify decide só pelo User-Agent. A allowlist é checada primeiro e,
// se casar, nada mais é olhado.
func (c *Classifier) Classify(userAgent string) Verdict {
	ua := strings.ToLower(strings.TrimSpace(userAgent))

	if _, ok := c.placeholders[ua]; ok {
		return VerdictBlocked
	}
	for _, s := range c.allow {
		if strings.Contains(ua, s) {
			return VerdictAllowed
		}
	}
	for _, s := range c.block {
		if strings.Contains(ua, s) {
			return VerdictBlocked
		}
	}
	return VerdictNeutral
}

// uma substring vazia casaria com qualquer UA
func dropEmpty(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
