// Package memory keeps a short, bounded history of handled questions and a
// popularity count over everything ever asked.
package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/similarity"
)

// Interaction is one handled question.
type Interaction struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Query        string    `json:"query"`
	Result       string    `json:"result"`
	ContextFound bool      `json:"context_found"`
	Fingerprint  string    `json:"fingerprint"`
}

// QueryCount is a normalized query and how often it was asked.
type QueryCount struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

// Config holds ConversationMemory configuration.
type Config struct {
	Capacity       int // interactions kept, default 100
	PreviewRunes   int // result preview length, default 200
	RecallWindow   int // most recent interactions scanned by Recall, default 10
	RecallMinScore int // similarity must exceed this, default 60
}

// DefaultConfig returns the reference memory settings.
func DefaultConfig() Config {
	return Config{Capacity: 100, PreviewRunes: 200, RecallWindow: 10, RecallMinScore: 60}
}

// ConversationMemory is a fixed-size FIFO of interactions plus an unbounded
// frequency counter. It is safe for concurrent use.
type ConversationMemory struct {
	cfg        Config
	now        func() time.Time
	similarity similarity.Func

	mu     sync.RWMutex
	ring   []Interaction
	start  int // index of the oldest interaction
	size   int
	counts map[string]*popularity
	seq    int
}

type popularity struct {
	count     int
	firstSeen int
}

// New creates a memory. Zero config fields take their defaults.
func New(cfg Config) *ConversationMemory {
	def := DefaultConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}
	if cfg.PreviewRunes <= 0 {
		cfg.PreviewRunes = def.PreviewRunes
	}
	if cfg.RecallWindow <= 0 {
		cfg.RecallWindow = def.RecallWindow
	}
	if cfg.RecallMinScore <= 0 {
		cfg.RecallMinScore = def.RecallMinScore
	}
	return &ConversationMemory{
		cfg:        cfg,
		now:        time.Now,
		similarity: similarity.Ratio,
		ring:       make([]Interaction, cfg.Capacity),
		counts:     make(map[string]*popularity),
	}
}

// SetClock replaces the time source.
func (m *ConversationMemory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SetSimilarity replaces the function Recall compares queries with.
func (m *ConversationMemory) SetSimilarity(fn similarity.Func) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.similarity = fn
}

// Add records an interaction, evicting the oldest one when full.
func (m *ConversationMemory) Add(query, result string, contextFound bool) Interaction {
	key := normalizeQuery(query)

	m.mu.Lock()
	defer m.mu.Unlock()

	it := Interaction{
		ID:           uuid.NewString(),
		Timestamp:    m.now(),
		Query:        query,
		Result:       truncateRunes(result, m.cfg.PreviewRunes),
		ContextFound: contextFound,
		Fingerprint:  Fingerprint(query),
	}

	if m.size < len(m.ring) {
		m.ring[(m.start+m.size)%len(m.ring)] = it
		m.size++
	} else {
		m.ring[m.start] = it
		m.start = (m.start + 1) % len(m.ring)
	}

	if p, ok := m.counts[key]; ok {
		p.count++
	} else {
		m.counts[key] = &popularity{count: 1, firstSeen: m.seq}
		m.seq++
	}
	return it
}

// Recall returns the most recent interaction, among the last few, whose
// query is similar to query.
func (m *ConversationMemory) Recall(query string) (*Interaction, bool) {
	key := normalizeQuery(query)

	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := 0; i < m.size && i < m.cfg.RecallWindow; i++ {
		it := m.at(m.size - 1 - i)
		if m.similarity(key, normalizeQuery(it.Query)) > m.cfg.RecallMinScore {
			found := it
			return &found, true
		}
	}
	return nil, false
}

// Popular returns the n most asked queries, most frequent first. Ties keep
// the order in which the queries were first asked.
func (m *ConversationMemory) Popular(n int) []QueryCount {
	m.mu.RLock()
	type entry struct {
		QueryCount
		firstSeen int
	}
	entries := make([]entry, 0, len(m.counts))
	for q, p := range m.counts {
		entries = append(entries, entry{QueryCount{Query: q, Count: p.count}, p.firstSeen})
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].firstSeen < entries[j].firstSeen
	})

	if n < 0 {
		n = 0
	}
	if n > len(entries) {
		n = len(entries)
	}
	out := make([]QueryCount, n)
	for i := 0; i < n; i++ {
		out[i] = entries[i].QueryCount
	}
	return out
}

// Recent returns up to n interactions, newest first.
func (m *ConversationMemory) Recent(n int) []Interaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if n > m.size {
		n = m.size
	}
	out := make([]Interaction, 0, max(n, 0))
	for i := 0; i < n; i++ {
		out = append(out, m.at(m.size-1-i))
	}
	return out
}

// Len returns the number of interactions held.
func (m *ConversationMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// Clear drops every interaction and all popularity counts.
func (m *ConversationMemory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ring = make([]Interaction, len(m.ring))
	m.start, m.size, m.seq = 0, 0, 0
	m.counts = make(map[string]*popularity)
}

// at returns the i-th held interaction, oldest first. Callers hold mu.
func (m *ConversationMemory) at(i int) Interaction {
	return m.ring[(m.start+i)%len(m.ring)]
}

// Fingerprint is the sha256 of the normalized query.
func Fingerprint(query string) string {
	sum := sha256.Sum256([]byte(normalizeQuery(query)))
	return hex.EncodeToString(sum[:])
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(q)))
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
