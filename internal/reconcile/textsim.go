package reconcile

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Normalize lowercases s, drops everything but letters, digits and
// whitespace, and collapses whitespace runs to single spaces.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			pendingSpace = true
		}
	}
	return b.String()
}

// TextSimilarity compares two strings after normalization and returns a
// value in [0,1]. Identical text scores 1; when one contains the other the
// score is the length ratio; otherwise it is the overlap of words longer
// than two characters relative to the larger word set.
func TextSimilarity(a, b string) decimal.Decimal {
	return normalizedSimilarity(Normalize(a), Normalize(b))
}

func normalizedSimilarity(a, b string) decimal.Decimal {
	if a == "" || b == "" {
		return decimal.Zero
	}
	if a == b {
		return decimal.NewFromInt(1)
	}

	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if strings.Contains(a, b) || strings.Contains(b, a) {
		shorter, longer := la, lb
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		return decimal.NewFromInt(int64(shorter)).Div(decimal.NewFromInt(int64(longer)))
	}

	wa, wb := wordSet(a), wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return decimal.Zero
	}
	common := 0
	for w := range wa {
		if wb[w] {
			common++
		}
	}
	return decimal.NewFromInt(int64(common)).Div(decimal.NewFromInt(int64(max(len(wa), len(wb)))))
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		if utf8.RuneCountInString(w) > 2 {
			set[w] = true
		}
	}
	return set
}

// MerchantAlias maps bank descriptor text to a canonical merchant name.
// Pattern is matched against normalized text.
type MerchantAlias struct {
	Pattern  string
	Merchant string
}

// DefaultMerchantAliases covers descriptors that share no words with the
// merchant name users type.
func DefaultMerchantAliases() []MerchantAlias {
	return []MerchantAlias{
		{Pattern: `^(amzn|amazon)\b`, Merchant: "Amazon"},
	}
}

type compiledAlias struct {
	re       *regexp.Regexp
	merchant string
}

// Canonicalizer rewrites normalized descriptor text to canonical merchant
// names. A nil Canonicalizer leaves text alone.
type Canonicalizer struct {
	aliases []compiledAlias
}

// NewCanonicalizer compiles aliases in order; the first matching pattern wins.
func NewCanonicalizer(aliases []MerchantAlias) (*Canonicalizer, error) {
	c := &Canonicalizer{}
	for i, a := range aliases {
		re, err := regexp.Compile(a.Pattern)
		if err != nil {
			return nil, fmt.Errorf("alias %d: compiling %q: %w", i, a.Pattern, err)
		}
		c.aliases = append(c.aliases, compiledAlias{re: re, merchant: Normalize(a.Merchant)})
	}
	return c, nil
}

// Canonical returns the canonical form of normalized text.
func (c *Canonicalizer) Canonical(normalized string) string {
	if c == nil || normalized == "" {
		return normalized
	}
	for _, a := range c.aliases {
		if a.re.MatchString(normalized) {
			return a.merchant
		}
	}
	return normalized
}
