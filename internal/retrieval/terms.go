package retrieval

import "strings"

const termPunctuation = ".,!?;:()[]{}'\"“”‘’"

var stopWords = map[string]bool{
	// English
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"of": true, "in": true, "on": true, "at": true, "to": true, "for": true,
	"and": true, "or": true, "with": true, "by": true, "from": true, "about": true,
	"what": true, "which": true, "who": true, "whose": true, "where": true,
	"how": true, "me": true, "my": true, "i": true, "you": true, "it": true,
	"please": true, "can": true, "could": true, "do": true, "does": true,
	"show": true, "find": true, "search": true, "list": true, "data": true,
	"info": true, "information": true, "tell": true, "give": true,
	// Thai
	"ที่": true, "และ": true, "หรือ": true, "ของ": true, "ใน": true, "มี": true,
	"เป็น": true, "คือ": true, "ได้": true, "ให้": true, "กับ": true, "จาก": true,
	"นี้": true, "นั้น": true, "อะไร": true, "ไหม": true, "บ้าง": true,
	"ครับ": true, "ค่ะ": true, "คะ": true, "นะ": true, "หน่อย": true,
	"ขอ": true, "อยาก": true, "ช่วย": true, "ค้นหา": true, "หา": true,
	"ดู": true, "แสดง": true, "ข้อมูล": true, "ของคุณ": true, "เกี่ยวกับ": true,
}

// Thai is written without spaces, so command verbs and polite particles
// are glued onto the content word they accompany.
var (
	thaiCommandPrefixes  = []string{"ช่วยค้นหา", "ค้นหา", "ขอดู", "ขอหา", "แสดง"}
	thaiParticleSuffixes = []string{"ให้หน่อย", "หน่อย", "ครับ", "ค่ะ", "คะ"}
)

// Terms splits a query into search terms: whitespace tokens of the
// normalized query with punctuation trimmed and stop-words removed. When
// nothing survives the whole normalized query is the single term.
func Terms(query string) []string {
	q := Normalize(query)

	var terms []string
	seen := make(map[string]bool)
	for _, word := range strings.Fields(q) {
		word = stripThaiAffixes(strings.Trim(word, termPunctuation))
		if word == "" || stopWords[word] || seen[word] {
			continue
		}
		seen[word] = true
		terms = append(terms, word)
	}

	if len(terms) == 0 {
		if whole := strings.TrimSpace(q); whole != "" {
			terms = []string{whole}
		}
	}
	return terms
}

func stripThaiAffixes(word string) string {
	for _, p := range thaiCommandPrefixes {
		if rest := strings.TrimPrefix(word, p); rest != word && rest != "" {
			word = rest
			break
		}
	}
	for _, s := range thaiParticleSuffixes {
		if rest := strings.TrimSuffix(word, s); rest != word && rest != "" {
			word = rest
			break
		}
	}
	return word
}
