package pipeline

import (
	"path/filepath"
	"strings"
)

type DetectResult struct {
	IsList bool
	Score  float64
	Reason string
}

var detectKeywords = []string{"delinquent", "delinquency", "tax sale", "auction", "parcel", "lien", "power to sale", "redemption"}

var listExtensions = map[string]bool{".csv": true, ".xlsx": true, ".pdf": true, ".html": true, ".htm": true}

// DetectDelinquencyList scores a message by keywords and attachment types.
func DetectDelinquencyList(subject, text, html string, attachmentNames []string) DetectResult {
	subject = strings.ToLower(subject)
	text = strings.ToLower(text)
	html = strings.ToLower(html)

	score := 0.0
	for _, kw := range detectKeywords {
		if strings.Contains(subject, kw) {
			score += 0.2
		}
		if strings.Contains(text, kw) || strings.Contains(html, kw) {
			score += 0.1
		}
	}

	for _, name := range attachmentNames {
		if listExtensions[strings.ToLower(filepath.Ext(name))] {
			score += 0.25
			break
		}
	}

	if strings.Contains(html, "<table") {
		score += 0.25
	}
	if score > 1 {
		score = 1
	}

	isList := score >= 0.45
	reason := "rules_negative"
	if isList {
		reason = "rules_positive"
	}

	return DetectResult{IsList: isList, Score: score, Reason: reason}
}
