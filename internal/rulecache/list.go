// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rulecache

// RuleList holds the rules for one (document type, field) pair, ordered by
// non-increasing weight. The list is a contiguous slice; promotion rotates a
// rule forward in place rather than re-sorting.
type RuleList struct {
	rules []*Rule
}

// Len returns the number of rules in the list.
func (l *RuleList) Len() int { return len(l.rules) }

// Rules returns the rules in current priority order. The returned slice is a
// copy; the rules themselves remain owned by the list.
func (l *RuleList) Rules() []*Rule {
	out := make([]*Rule, len(l.rules))
	copy(out, l.rules)
	return out
}

// Add appends rule at the tail, the lowest-priority position; new rules earn
// promotion through use. Adding a rule whose extraction pattern already exists
// in the list is a no-op and returns false.
func (l *RuleList) Add(rule *Rule) bool {
	for _, existing := range l.rules {
		if existing.extraction == rule.extraction {
			return false
		}
	}
	l.rules = append(l.rules, rule)
	return true
}

// TryExtract scans rules in priority order and returns the value of the first
// rule that matches text and validates its capture. On a hit the rule's weight
// is incremented and the rule bubbles forward past lower-weight entries.
func (l *RuleList) TryExtract(text string) (string, bool) {
	for i, rule := range l.rules {
		value, ok := rule.Hit(text)
		if !ok {
			continue
		}
		rule.weight++
		l.promote(i)
		return value, true
	}
	return "", false
}

// promote moves the rule at index i forward past every immediately-preceding
// rule with strictly lower weight, stopping at the first rule whose weight is
// greater or equal. O(distance moved).
func (l *RuleList) promote(i int) {
	rule := l.rules[i]
	j := i
	for j > 0 && l.rules[j-1].weight < rule.weight {
		j--
	}
	if j == i {
		return
	}
	copy(l.rules[j+1:i+1], l.rules[j:i])
	l.rules[j] = rule
}

// ordered reports whether the list satisfies the non-increasing weight
// invariant. Exposed to tests via list_test.go assertions.
func (l *RuleList) ordered() bool {
	for i := 1; i < len(l.rules); i++ {
		if l.rules[i-1].weight < l.rules[i].weight {
			return false
		}
	}
	return true
}
