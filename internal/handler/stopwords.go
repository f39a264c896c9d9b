package handler

// stopwords is the fixed English stopword set concept extraction drops
// before seeding spreading activation. Multilingual normalization is
// out of scope.
var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "is": {}, "are": {},
	"was": {}, "were": {}, "be": {}, "been": {}, "being": {}, "to": {}, "of": {}, "in": {},
	"on": {}, "at": {}, "for": {}, "with": {}, "by": {}, "from": {}, "about": {}, "as": {},
	"into": {}, "through": {}, "during": {}, "before": {}, "after": {}, "above": {}, "below": {},
	"this": {}, "that": {}, "these": {}, "those": {}, "what": {}, "which": {}, "who": {},
	"whom": {}, "does": {}, "did": {}, "has": {}, "have": {}, "had": {}, "can": {}, "will": {},
	"would": {}, "should": {}, "could": {}, "you": {}, "your": {}, "they": {}, "their": {},
}

// extractConcepts case-folds the query, splits on whitespace, drops
// stopwords, and keeps tokens longer than 3 characters — the seed set
// for spreading activation.
func extractConcepts(query string) []string {
	tokens := tokenizeFold(query)
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, stop := stopwords[t]; stop {
			continue
		}
		if len(t) > 3 {
			out = append(out, t)
		}
	}
	return out
}
