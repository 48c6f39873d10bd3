package rules

import (
	"regexp"
	"strconv"
	"strings"
)

// The compiler recognises a closed set of phrase templates. Each template
// resolves to exactly one selector and one field; statements that do not
// match any template fail whole, never partially.
//
// Recognised phrasings:
//
//	delay all flex suppliers by 15 extra days
//	delay Acme Corp by 10 extra days
//	set all core suppliers max delay to 3 days
//	set Acme Corp max delay to 7 days
//	set supplier 42 priority to 2
//	prioritize Acme Corp payments
//	deprioritize Acme Corp payments
//	Acme Corp: flex delay 10 days        (legacy compact form)
type pattern struct {
	re    *regexp.Regexp
	build func(m []string) (PolicyEffect, error)
}

var patterns = []pattern{
	{
		re: regexp.MustCompile(`^(?i)delay\s+all\s+(flex|core)\s+suppliers\s+by\s+(\d+)\s+extra\s+days?$`),
		build: func(m []string) (PolicyEffect, error) {
			value, err := parseDays(m[2])
			if err != nil {
				return PolicyEffect{}, err
			}
			return PolicyEffect{
				Selector:  Selector{Type: SelectBySupplierType, SupplierType: strings.ToLower(m[1])},
				Field:     FieldMaxDelayDays,
				Operation: OpAdd,
				Value:     value,
			}, nil
		},
	},
	{
		re: regexp.MustCompile(`^(?i)delay\s+(.+?)\s+by\s+(\d+)\s+extra\s+days?$`),
		build: func(m []string) (PolicyEffect, error) {
			value, err := parseDays(m[2])
			if err != nil {
				return PolicyEffect{}, err
			}
			return PolicyEffect{
				Selector:  Selector{Type: SelectByNamePattern, NamePattern: strings.TrimSpace(m[1])},
				Field:     FieldMaxDelayDays,
				Operation: OpAdd,
				Value:     value,
			}, nil
		},
	},
	{
		re: regexp.MustCompile(`^(?i)set\s+all\s+(flex|core)\s+suppliers\s+max\s+delay\s+to\s+(\d+)\s+days?$`),
		build: func(m []string) (PolicyEffect, error) {
			value, err := parseDays(m[2])
			if err != nil {
				return PolicyEffect{}, err
			}
			return PolicyEffect{
				Selector:  Selector{Type: SelectBySupplierType, SupplierType: strings.ToLower(m[1])},
				Field:     FieldMaxDelayDays,
				Operation: OpSet,
				Value:     value,
			}, nil
		},
	},
	{
		re: regexp.MustCompile(`^(?i)set\s+supplier\s+(\d+)\s+priority\s+to\s+(-?\d+)$`),
		build: func(m []string) (PolicyEffect, error) {
			id, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				return PolicyEffect{}, &ParseError{Segment: m[1]}
			}
			value, err := strconv.Atoi(m[2])
			if err != nil {
				return PolicyEffect{}, &ParseError{Segment: m[2]}
			}
			return PolicyEffect{
				Selector:  Selector{Type: SelectBySupplierID, SupplierID: id},
				Field:     FieldPriority,
				Operation: OpSet,
				Value:     value,
			}, nil
		},
	},
	{
		re: regexp.MustCompile(`^(?i)set\s+(.+?)\s+max\s+delay\s+to\s+(\d+)\s+days?$`),
		build: func(m []string) (PolicyEffect, error) {
			value, err := parseDays(m[2])
			if err != nil {
				return PolicyEffect{}, err
			}
			return PolicyEffect{
				Selector:  Selector{Type: SelectByNamePattern, NamePattern: strings.TrimSpace(m[1])},
				Field:     FieldMaxDelayDays,
				Operation: OpSet,
				Value:     value,
			}, nil
		},
	},
	{
		re: regexp.MustCompile(`^(?i)prioriti[sz]e\s+(.+?)\s+payments$`),
		build: func(m []string) (PolicyEffect, error) {
			return PolicyEffect{
				Selector:  Selector{Type: SelectByNamePattern, NamePattern: strings.TrimSpace(m[1])},
				Field:     FieldPriority,
				Operation: OpAdd,
				Value:     1,
			}, nil
		},
	},
	{
		re: regexp.MustCompile(`^(?i)deprioriti[sz]e\s+(.+?)\s+payments$`),
		build: func(m []string) (PolicyEffect, error) {
			return PolicyEffect{
				Selector:  Selector{Type: SelectByNamePattern, NamePattern: strings.TrimSpace(m[1])},
				Field:     FieldPriority,
				Operation: OpAdd,
				Value:     -1,
			}, nil
		},
	},
	{
		// Legacy compact form. The type token is validated by the template
		// but only the delay carries into the effect.
		re: regexp.MustCompile(`^(?i)(.+?):\s*(flex|core)\s+delay\s+(\d+)\s+days?$`),
		build: func(m []string) (PolicyEffect, error) {
			value, err := parseDays(m[3])
			if err != nil {
				return PolicyEffect{}, err
			}
			return PolicyEffect{
				Selector:  Selector{Type: SelectByNamePattern, NamePattern: strings.TrimSpace(m[1])},
				Field:     FieldMaxDelayDays,
				Operation: OpSet,
				Value:     value,
			}, nil
		},
	},
}

// Compile parses one free-text statement into a PolicyEffect.
func Compile(text string) (PolicyEffect, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return PolicyEffect{}, &ParseError{Text: text, Segment: "(empty)"}
	}
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		effect, err := p.build(m)
		if err != nil {
			if perr, ok := err.(*ParseError); ok {
				perr.Text = text
			}
			return PolicyEffect{}, err
		}
		return effect, nil
	}
	return PolicyEffect{}, &ParseError{Text: text, Segment: diagnose(trimmed)}
}

func parseDays(raw string) (int, error) {
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ParseError{Segment: raw}
	}
	return value, nil
}

// diagnose names the clause that prevented a match, for the error report.
func diagnose(text string) string {
	lower := strings.ToLower(text)
	if idx := strings.Index(lower, " and "); idx >= 0 {
		return strings.TrimSpace(text[idx:])
	}
	if idx := strings.Index(text, ":"); idx >= 0 && idx+1 < len(text) {
		return strings.TrimSpace(text[idx+1:])
	}
	for _, head := range []string{"delay ", "set ", "prioritize ", "prioritise ", "deprioritize ", "deprioritise "} {
		if strings.HasPrefix(lower, head) {
			return strings.TrimSpace(text[len(head):])
		}
	}
	return text
}
