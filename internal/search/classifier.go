package search

import (
	"strings"

	"github.com/prism-data/prism/internal/rowindex"
)

// AggregateOp is the aggregation the classifier detected in a query.
type AggregateOp string

const (
	OpNone  AggregateOp = ""
	OpSum   AggregateOp = "sum"
	OpCount AggregateOp = "count"
	OpAvg   AggregateOp = "avg"
	OpMin   AggregateOp = "min"
	OpMax   AggregateOp = "max"
)

// Classification is the outcome of the classify phase: whether the query
// is an aggregation over a known table, and which table it targets.
type Classification struct {
	IsAggregation bool
	Op            AggregateOp
	Table         *rowindex.TableRef
}

// opKeywords maps trigger phrases to operations. The default set can be
// extended through configuration; detection thresholds are policy, not
// hard-coded behavior.
var defaultOpKeywords = []struct {
	phrase string
	op     AggregateOp
}{
	{"how many", OpCount},
	{"count", OpCount},
	{"number of", OpCount},
	{"sum", OpSum},
	{"total", OpSum},
	{"average", OpAvg},
	{"avg", OpAvg},
	{"mean", OpAvg},
	{"minimum", OpMin},
	{"lowest", OpMin},
	{"min", OpMin},
	{"maximum", OpMax},
	{"highest", OpMax},
	{"max", OpMax},
}

// Classifier decides whether a query is an aggregation over a known table
// or a general semantic lookup. It holds only read-only state.
type Classifier struct {
	extraKeywords []string
}

// NewClassifier accepts additional aggregation trigger phrases beyond the
// built-in set (comma-separated phrases already split by the caller).
func NewClassifier(extraKeywords []string) *Classifier {
	return &Classifier{extraKeywords: extraKeywords}
}

// Classify inspects the query against the tables known for the data
// source. Aggregation requires both a trigger phrase and a recognizable
// target table; anything else stays a semantic lookup.
func (c *Classifier) Classify(query string, tables []rowindex.TableRef) Classification {
	lower := strings.ToLower(query)

	op := OpNone
	for _, kw := range defaultOpKeywords {
		if matchPhrase(lower, kw.phrase) {
			op = kw.op
			break
		}
	}
	if op == OpNone {
		for _, phrase := range c.extraKeywords {
			if phrase != "" && matchPhrase(lower, strings.ToLower(phrase)) {
				op = OpSum
				break
			}
		}
	}
	if op == OpNone {
		return Classification{}
	}

	table := matchTable(lower, tables)
	if table == nil {
		return Classification{}
	}

	return Classification{IsAggregation: true, Op: op, Table: table}
}

// matchPhrase requires whole-word matches for single-word triggers so that
// "count" does not fire on "account". Multi-word phrases match as
// substrings.
func matchPhrase(lowerQuery, phrase string) bool {
	if strings.ContainsRune(phrase, ' ') {
		return strings.Contains(lowerQuery, phrase)
	}
	return containsWord(lowerQuery, phrase)
}

// matchTable finds a known table whose name (or its singular form) appears
// in the query.
func matchTable(lowerQuery string, tables []rowindex.TableRef) *rowindex.TableRef {
	for i, ref := range tables {
		name := strings.ToLower(ref.Table)
		if name == "" {
			continue
		}
		if strings.Contains(lowerQuery, name) {
			return &tables[i]
		}
		if singular := strings.TrimSuffix(name, "s"); singular != name && containsWord(lowerQuery, singular) {
			return &tables[i]
		}
	}
	return nil
}

func containsWord(s, word string) bool {
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '_')
	}) {
		if tok == word {
			return true
		}
	}
	return false
}
