package answer

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/latoulicious/Sasayaki/pkg/pipeline"
)

// Interview question categories
const (
	CategoryAlgorithm     = "algorithm"
	CategoryDataStructure = "data_structure"
	CategorySystemDesign  = "system_design"
	CategoryLowLevel      = "low_level_design"
	CategoryBehavioral    = "behavioral"
	CategoryOOP           = "oop"
	CategoryDatabase      = "database"
	CategoryOS            = "operating_system"
	CategoryNetworking    = "networking"
	CategoryUnknown       = "unknown"
)

// DefaultKeywords maps every category to the phrases that select it.
// Categories are tried in Categories order, which also breaks ties.
var DefaultKeywords = map[string][]string{
	CategoryAlgorithm: {
		"sort", "search", "binary search", "quicksort", "merge sort", "bubble sort",
		"algorithm", "complexity", "big o", "optimization", "recursion", "iteration",
		"divide and conquer", "dynamic programming", "greedy", "backtracking",
	},
	CategoryDataStructure: {
		"array", "linked list", "stack", "queue", "tree", "graph", "hash",
		"hash map", "heap", "binary tree", "bst", "avl", "red black", "trie",
		"data structure", "traversal",
	},
	CategorySystemDesign: {
		"system design", "architecture", "scalability", "load balancer",
		"microservices", "distributed", "high level", "hld", "scalable",
		"throughput", "sharding", "replication", "cache", "url shortener",
	},
	CategoryLowLevel: {
		"low level", "lld", "class diagram", "design pattern", "singleton",
		"factory", "observer", "parking lot", "uml",
	},
	CategoryBehavioral: {
		"tell me about a time", "conflict", "challenge", "leadership", "team",
		"mistake", "failure", "strength", "weakness", "star",
	},
	CategoryOOP: {
		"oop", "object oriented", "inheritance", "polymorphism", "encapsulation",
		"abstraction", "interface", "class", "overloading", "overriding",
	},
	CategoryDatabase: {
		"database", "sql", "nosql", "index", "normalization", "transaction",
		"acid", "join", "schema", "query", "primary key",
	},
	CategoryOS: {
		"operating system", "process", "thread", "mutex", "semaphore", "deadlock",
		"scheduling", "virtual memory", "paging", "kernel", "context switch",
	},
	CategoryNetworking: {
		"network", "tcp", "udp", "http", "https", "dns", "ip address", "socket",
		"osi", "handshake", "latency", "bandwidth",
	},
}

// Categories lists the categories in classification order
var Categories = []string{
	CategoryAlgorithm,
	CategoryDataStructure,
	CategorySystemDesign,
	CategoryLowLevel,
	CategoryBehavioral,
	CategoryOOP,
	CategoryDatabase,
	CategoryOS,
	CategoryNetworking,
}

// confidenceByMatches is the confidence for 0, 1, 2, 3 and 4+ matched keywords
var confidenceByMatches = []float64{0, 0.5, 0.75, 0.9, 1.0}

// tiePenalty is subtracted when another category matched as often
const tiePenalty = 0.2

// KeywordClassifier categorizes questions by counting keyword matches
type KeywordClassifier struct {
	categories []string
	keywords   map[string][]string
}

// NewKeywordClassifier creates a classifier over the given keywords.
// A nil map uses DefaultKeywords.
func NewKeywordClassifier(keywords map[string][]string) *KeywordClassifier {
	if keywords == nil {
		keywords = DefaultKeywords
	}

	categories := make([]string, 0, len(keywords))
	for _, c := range Categories {
		if _, ok := keywords[c]; ok {
			categories = append(categories, c)
		}
	}
	var extra []string
	for c := range keywords {
		if !contains(categories, c) {
			extra = append(extra, c)
		}
	}
	sort.Strings(extra)
	categories = append(categories, extra...)

	normalized := make(map[string][]string, len(keywords))
	for category, words := range keywords {
		for _, w := range words {
			normalized[category] = append(normalized[category], normalize(w))
		}
	}

	return &KeywordClassifier{categories: categories, keywords: normalized}
}

// Classify returns the best matching category. Text without any keyword is
// CategoryUnknown with zero confidence.
func (c *KeywordClassifier) Classify(ctx context.Context, text string) (pipeline.Classification, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.Classification{}, err
	}

	haystack := " " + normalize(text) + " "

	best, bestCount, runnerUp := CategoryUnknown, 0, 0
	var bestMatches []string
	for _, category := range c.categories {
		matches := matchKeywords(haystack, c.keywords[category])
		switch {
		case len(matches) > bestCount:
			runnerUp = bestCount
			best, bestCount, bestMatches = category, len(matches), matches
		case len(matches) > runnerUp:
			runnerUp = len(matches)
		}
	}

	if bestCount == 0 {
		return pipeline.Classification{Category: CategoryUnknown}, nil
	}

	idx := bestCount
	if idx >= len(confidenceByMatches) {
		idx = len(confidenceByMatches) - 1
	}
	confidence := confidenceByMatches[idx]
	if runnerUp == bestCount {
		confidence -= tiePenalty
	}

	return pipeline.Classification{
		Category:   best,
		Confidence: confidence,
		Keywords:   bestMatches,
	}, nil
}

func matchKeywords(haystack string, keywords []string) []string {
	var matches []string
	for _, kw := range keywords {
		if strings.Contains(haystack, " "+kw+" ") || strings.Contains(haystack, " "+kw+"s ") {
			matches = append(matches, kw)
		}
	}
	return matches
}

// normalize lowercases s and turns every run of non alphanumerics into one space
func normalize(s string) string {
	var b strings.Builder
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
