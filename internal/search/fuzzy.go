// Package search implements the tokenized, case-insensitive scoring shared
// by the catalog_search meta-tool and the Router's not-found suggestion
// lists.
package search

import (
	"sort"
	"strings"
)

// Tokenize lower-cases s and splits it into runs of letters/digits.
func Tokenize(s string) []string {
	s = strings.ToLower(s)
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// Score ranks a candidate's name+description against a query: exact token
// matches in the name score highest, prefix matches next, description
// matches lowest, with a bonus for the name starting with the whole query.
func Score(query, name, description string) float64 {
	qTokens := Tokenize(query)
	if len(qTokens) == 0 {
		return 0
	}
	nameTokens := Tokenize(name)
	descTokens := Tokenize(description)

	var score float64
	for _, q := range qTokens {
		for _, n := range nameTokens {
			switch {
			case n == q:
				score += 3
			case strings.HasPrefix(n, q):
				score += 1.5
			}
		}
		for _, d := range descTokens {
			switch {
			case d == q:
				score += 1
			case strings.HasPrefix(d, q):
				score += 0.5
			}
		}
	}
	if strings.HasPrefix(strings.ToLower(name), strings.ToLower(query)) {
		score += 2
	}
	return score
}

// Candidate is one item eligible for scoring.
type Candidate struct {
	ID          string
	Name        string
	Description string
}

// Ranked ranks candidates against query, highest score first, dropping any
// with a zero score.
func Ranked(query string, candidates []Candidate) []Candidate {
	type scored struct {
		c     Candidate
		score float64
	}
	scoredList := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		s := Score(query, c.Name, c.Description)
		if s > 0 {
			scoredList = append(scoredList, scored{c, s})
		}
	}
	sort.SliceStable(scoredList, func(i, j int) bool { return scoredList[i].score > scoredList[j].score })
	out := make([]Candidate, len(scoredList))
	for i, s := range scoredList {
		out[i] = s.c
	}
	return out
}

// Suggest returns up to limit candidate IDs ranked against query, for
// not-found error "suggestions" lists.
func Suggest(query string, candidates []Candidate, limit int) []string {
	ranked := Ranked(query, candidates)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]string, len(ranked))
	for i, c := range ranked {
		out[i] = c.ID
	}
	return out
}
