// Package planner decomposes build requests into executable plans.
package planner

import (
	"sort"
	"strings"
)

// Analysis is what the planner extracts from a build request before
// generating tasks.
type Analysis struct {
	ProjectType  string         `json:"project_type"`
	Technologies []string       `json:"technologies"`
	Features     []string       `json:"features"`
	Constraints  map[string]any `json:"constraints"`
	Skills       []string       `json:"required_skills"`
	Services     []string       `json:"required_services"`
	DocTopics    []string       `json:"doc_topics"`
}

// Analyzer turns a natural-language request into a structured analysis. The
// keyword tables behind the default implementation are a collaborator concern;
// the planner only consumes the Analysis.
type Analyzer interface {
	Analyze(request string) Analysis
}

// KeywordAnalyzer is the built-in Analyzer: plain substring matching over
// curated keyword tables.
type KeywordAnalyzer struct{}

// NewKeywordAnalyzer creates the default analyzer.
func NewKeywordAnalyzer() *KeywordAnalyzer {
	return &KeywordAnalyzer{}
}

var techKeywords = []string{
	"react", "vue", "angular", "next.js", "nextjs", "svelte",
	"node", "python", "go", "typescript", "javascript",
	"mongodb", "postgres", "mysql", "redis",
	"stripe", "notion", "airtable",
}

var serviceKeywords = map[string]string{
	"stripe":   "stripe",
	"payment":  "stripe",
	"notion":   "notion",
	"airtable": "airtable",
	"mongodb":  "mongodb",
	"database": "mongodb",
	"hubspot":  "hubspot",
	"crm":      "hubspot",
}

var skillKeywords = map[string]string{
	"document":     "docx",
	"word":         "docx",
	"pdf":          "pdf",
	"presentation": "pptx",
	"powerpoint":   "pptx",
	"spreadsheet":  "xlsx",
	"excel":        "xlsx",
	"web":          "artifacts-builder",
	"react":        "artifacts-builder",
	"dashboard":    "artifacts-builder",
}

var docTopicKeywords = map[string]string{
	"react":    "react",
	"next.js":  "next.js",
	"nextjs":   "next.js",
	"vue":      "vue",
	"mongodb":  "mongodb",
	"stripe":   "stripe",
	"tailwind": "tailwindcss",
}

var featureKeywords = map[string][]string{
	"authentication": {"auth", "login", "signup"},
	"payment":        {"payment", "checkout", "stripe"},
	"database":       {"database", "data", "store"},
	"api":            {"api", "endpoint", "rest"},
	"ui":             {"ui", "interface", "dashboard", "design"},
	"search":         {"search", "filter", "query"},
	"notification":   {"notification", "alert", "email"},
}

// Analyze extracts project type, technologies, features, constraints, and the
// skill/service/documentation requirements implied by the request.
func (a *KeywordAnalyzer) Analyze(request string) Analysis {
	lower := strings.ToLower(request)

	analysis := Analysis{
		ProjectType: projectType(lower),
		Constraints: map[string]any{},
	}

	for _, tech := range techKeywords {
		if strings.Contains(lower, tech) {
			analysis.Technologies = append(analysis.Technologies, tech)
		}
	}

	analysis.Services = collect(lower, serviceKeywords)
	analysis.Skills = collect(lower, skillKeywords)
	analysis.DocTopics = collect(lower, docTopicKeywords)

	for feature, keywords := range featureKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				analysis.Features = append(analysis.Features, feature)

				break
			}
		}
	}

	if strings.Contains(lower, "urgent") || strings.Contains(lower, "asap") {
		analysis.Constraints["priority"] = "high"
	}

	if strings.Contains(lower, "test") {
		analysis.Constraints["include_tests"] = true
	}

	return analysis
}

func projectType(lower string) string {
	switch {
	case containsAny(lower, "app", "application", "web", "dashboard"):
		return "web_application"
	case containsAny(lower, "document", "report", "pdf", "docx"):
		return "document_generation"
	case containsAny(lower, "api", "integration", "sync"):
		return "api_integration"
	case containsAny(lower, "pipeline", "automation", "workflow"):
		return "data_pipeline"
	default:
		return "general"
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}

	return false
}

// collect returns the deduplicated mapped values whose keyword appears in the
// request, in a deterministic order.
func collect(lower string, mapping map[string]string) []string {
	seen := make(map[string]bool)

	var result []string

	// Walk keywords in sorted order so output is stable across runs.
	for _, kw := range sortedKeys(mapping) {
		if strings.Contains(lower, kw) && !seen[mapping[kw]] {
			seen[mapping[kw]] = true
			result = append(result, mapping[kw])
		}
	}

	return result
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
