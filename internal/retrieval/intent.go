// Package retrieval turns a free-text question into a bounded, ranked set of
// dataset rows or an analysis report.
package retrieval

import (
	"regexp"
	"strings"
)

// Intent represents the classified intent of a query.
type Intent string

const (
	IntentData     Intent = "data_request"
	IntentSearch   Intent = "search_request"
	IntentAnalysis Intent = "analysis_request"
	IntentHelp     Intent = "help_request"
	IntentGeneral  Intent = "general"
)

// Intents lists every intent in declaration order, which is also the
// tie-break order.
var Intents = []Intent{IntentData, IntentSearch, IntentAnalysis, IntentHelp, IntentGeneral}

// Classification is the outcome of classifying a query.
type Classification struct {
	Intent     Intent         `json:"intent"`
	Confidence float64        `json:"confidence"`
	Scores     map[Intent]int `json:"scores,omitempty"`
}

// IntentRule holds the patterns and keywords that vote for one intent.
// Patterns and keywords are matched against the lower-cased query.
type IntentRule struct {
	Intent   Intent
	Patterns []*regexp.Regexp
	Keywords []string
}

const (
	patternWeight = 3
	keywordWeight = 1
)

// IntentClassifier classifies query intent using weighted patterns and keywords.
type IntentClassifier struct {
	rules []IntentRule
}

// NewIntentClassifier creates a classifier with the bilingual rule table.
func NewIntentClassifier() *IntentClassifier {
	return NewIntentClassifierWithRules(defaultIntentRules())
}

// NewIntentClassifierWithRules creates a classifier over custom rules. Rules
// are ordered by the Intents declaration order regardless of input order.
func NewIntentClassifierWithRules(rules []IntentRule) *IntentClassifier {
	byIntent := make(map[Intent]IntentRule, len(rules))
	for _, r := range rules {
		byIntent[r.Intent] = r
	}
	ordered := make([]IntentRule, 0, len(Intents))
	for _, intent := range Intents {
		if r, ok := byIntent[intent]; ok {
			ordered = append(ordered, r)
		}
	}
	return &IntentClassifier{rules: ordered}
}

// Classify scores every intent and returns the winner. Each matching pattern
// is worth 3 points and each keyword found as a substring 1 point. A query
// matching nothing is general with zero confidence.
func (c *IntentClassifier) Classify(query string) Classification {
	q := Normalize(query)

	scores := make(map[Intent]int, len(c.rules))
	total := 0
	best, bestScore := IntentGeneral, 0
	for _, rule := range c.rules {
		score := 0
		for _, p := range rule.Patterns {
			if p.MatchString(q) {
				score += patternWeight
			}
		}
		for _, kw := range rule.Keywords {
			if strings.Contains(q, kw) {
				score += keywordWeight
			}
		}
		scores[rule.Intent] = score
		total += score
		// Strictly greater keeps the earliest-declared intent on ties.
		if score > bestScore {
			best, bestScore = rule.Intent, score
		}
	}

	if total == 0 {
		return Classification{Intent: IntentGeneral, Confidence: 0, Scores: scores}
	}
	return Classification{
		Intent:     best,
		Confidence: float64(bestScore) / float64(total),
		Scores:     scores,
	}
}

func defaultIntentRules() []IntentRule {
	return []IntentRule{
		{
			Intent: IntentData,
			Patterns: compileAll(
				`ดูข้อมูล`,
				`แสดง(ข้อมูล|รายการ|ทั้งหมด)`,
				`(ข้อมูล|รายการ)ทั้งหมด`,
				`\d+\s*(แถว|รายการ)`,
				`\b(show|display|list)\b`,
				`\d+\s*rows?\b`,
			),
			Keywords: []string{"ข้อมูล", "ดู", "แสดง", "แถว", "รายการ", "show", "list", "rows", "data"},
		},
		{
			Intent: IntentSearch,
			Patterns: compileAll(
				`ค้นหา`,
				`^หา`,
				`ที่ไหน`,
				`(ชื่อ|เบอร์|รหัส)\s*\S+`,
				`\b(search|find|lookup|look\s+up|where)\b`,
				`^[\d\s.,/:-]+$`,
			),
			Keywords: []string{"ค้นหา", "ใคร", "ที่ไหน", "ชื่อ", "เบอร์", "search", "find", "who", "where"},
		},
		{
			Intent: IntentAnalysis,
			Patterns: compileAll(
				`วิเคราะห์`,
				`(สถิติ|สรุป)`,
				`(ค่า)?เฉลี่ย`,
				`(ผลรวม|ยอดรวม)`,
				`(สูงสุด|ต่ำสุด|มากที่สุด|น้อยที่สุด)`,
				`กี่(คน|รายการ|แถว|ราย)`,
				`\b(analy[sz]e|analysis|statistics?|stats|summary|summari[sz]e)\b`,
				`\b(sum|total|average|avg|mean|max(imum)?|min(imum)?)\b`,
				`\bhow\s+many\b`,
			),
			Keywords: []string{"วิเคราะห์", "สถิติ", "สรุป", "เฉลี่ย", "รวม", "จำนวน", "analy", "average", "total", "count"},
		},
		{
			Intent: IntentHelp,
			Patterns: compileAll(
				`ช่วย(ด้วย|เหลือ)?`,
				`วิธี(ใช้|การใช้)`,
				`(คู่มือ|คำสั่ง)`,
				`\bhelp\b`,
				`\bhow\s+(do|to|can)\s+(i\s+)?use\b`,
				`\b(manual|usage|guide)\b`,
			),
			Keywords: []string{"ช่วย", "คู่มือ", "วิธีใช้", "คำสั่ง", "การตั้งค่า", "help", "manual", "settings"},
		},
		{
			Intent: IntentGeneral,
			Patterns: compileAll(
				`^(สวัสดี|หวัดดี)`,
				`^(hello|hi|hey)\b`,
				`(ขอบคุณ|thank)`,
				`(คุณคือใคร|who\s+are\s+you)`,
			),
			Keywords: []string{"สวัสดี", "ขอบคุณ", "hello", "thanks"},
		},
	}
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}
