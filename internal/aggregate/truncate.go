package aggregate

import "encoding/json"

// charsPerToken approximates tokens from serialized size.
const charsPerToken = 4

// Truncation caps applied in order once the context is over budget.
const (
	truncHistory      = 3
	truncContributors = 2
	truncPatterns     = 2
	truncGroupSize    = 3
)

// EstimateTokens approximates the token cost of a context from its JSON
// size.
func EstimateTokens(c *Context) int {
	payload, err := json.Marshal(c)
	if err != nil {
		return 0
	}
	return (len(payload) + charsPerToken - 1) / charsPerToken
}

// TruncateContext shrinks c in place until its token estimate fits the
// budget, removing content in a strict order: similar entities first, then
// history beyond 3, contributors beyond 2, patterns beyond 2, each related
// group beyond 3 entities, and finally whole groups from the
// lowest-relevance end while more than one remains. The focal entity always
// survives. WasTruncated reports whether anything was removed; already
// fitting contexts pass through untouched. budget <= 0 uses
// DefaultTokenBudget.
func TruncateContext(c *Context, budget int) {
	if budget <= 0 {
		budget = DefaultTokenBudget
	}
	c.TokenEstimate = EstimateTokens(c)
	if c.TokenEstimate <= budget {
		return
	}

	steps := []func(*Context) bool{
		func(c *Context) bool {
			if len(c.SimilarEntities) == 0 {
				return false
			}
			c.SimilarEntities = nil
			return true
		},
		func(c *Context) bool {
			if len(c.History) <= truncHistory {
				return false
			}
			c.History = c.History[:truncHistory]
			return true
		},
		func(c *Context) bool {
			if len(c.Contributors) <= truncContributors {
				return false
			}
			c.Contributors = c.Contributors[:truncContributors]
			return true
		},
		func(c *Context) bool {
			if len(c.Patterns) <= truncPatterns {
				return false
			}
			c.Patterns = c.Patterns[:truncPatterns]
			return true
		},
		func(c *Context) bool {
			removed := false
			for i := range c.RelatedGroups {
				g := &c.RelatedGroups[i]
				if len(g.Entities) > truncGroupSize {
					g.Entities = g.Entities[:truncGroupSize]
					removed = true
				}
			}
			return removed
		},
	}

	for _, step := range steps {
		if step(c) {
			c.WasTruncated = true
			c.TokenEstimate = EstimateTokens(c)
			if c.TokenEstimate <= budget {
				return
			}
		}
	}

	// Groups are sorted by relevance descending, so the last is always the
	// least relevant.
	for len(c.RelatedGroups) > 1 {
		c.RelatedGroups = c.RelatedGroups[:len(c.RelatedGroups)-1]
		c.WasTruncated = true
		c.TokenEstimate = EstimateTokens(c)
		if c.TokenEstimate <= budget {
			return
		}
	}
}
