package dialect

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// Supported regional narration variants.
const (
	North   = "north"
	Central = "central"
	South   = "south"
)

// Mapper rewrites regional Vietnamese vocabulary so page text matches the
// narration variant the listener selected. Central keeps local words as-is;
// north and south map them to their regional equivalents.
type Mapper struct {
	mu        sync.RWMutex
	mappings  map[string]map[string]string
	replacers map[string]*replacer
	patterns  map[string][]*regexp.Regexp
}

func NewMapper() *Mapper {
	m := &Mapper{
		mappings: map[string]map[string]string{
			North: {
				"rứa":     "vậy",
				"hắn":     "nó",
				"mần chi": "làm gì",
				"răng":    "sao",
				"mô":      "đâu",
				"tê":      "kia",
				"ni":      "này",
				"mô răng": "sao vậy",
				"chi rứa": "gì vậy",
			},
			Central: {
				"rứa":     "rứa",
				"hắn":     "hắn",
				"mần chi": "mần chi",
				"răng":    "răng",
				"mô":      "mô",
				"tê":      "tê",
				"ni":      "ni",
				"mô răng": "mô răng",
				"chi rứa": "chi rứa",
			},
			South: {
				"rứa":     "vậy",
				"hắn":     "ổng",
				"mần chi": "làm chi",
				"răng":    "sao",
				"mô":      "đâu",
				"tê":      "kia",
				"ni":      "này",
				"mô răng": "sao vậy",
				"chi rứa": "gì vậy",
			},
		},
	}
	m.replacers = make(map[string]*replacer, len(m.mappings))
	for name, mapping := range m.mappings {
		m.replacers[name] = compileReplacer(mapping)
	}
	m.patterns = map[string][]*regexp.Regexp{
		Central: compilePatterns("rứa", "hắn", "mần chi", "răng", "mô", "tê", "ni", "chi rứa"),
		North:   compilePatterns("vậy", "nó", "làm gì", "sao", "đâu", "kia", "này", "gì vậy"),
		South:   compilePatterns("vậy", "ổng", "bả", "làm chi", "sao", "đâu", "kia", "này"),
	}
	return m
}

// Known reports whether the dialect name is a supported variant.
func (m *Mapper) Known(dialect string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.mappings[dialect]
	return ok
}

// Dialects returns the supported variant names, sorted.
func (m *Mapper) Dialects() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.mappings))
	for name := range m.mappings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Transform rewrites text toward the target dialect. Unknown dialects return
// the text unchanged.
func (m *Mapper) Transform(text, target string) string {
	m.mu.RLock()
	rep := m.replacers[target]
	m.mu.RUnlock()
	if rep == nil {
		return text
	}
	return rep.apply(text)
}

// Detect scores the text against each variant's characteristic vocabulary and
// returns the best match.
func (m *Mapper) Detect(text string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	best := North
	bestScore := -1
	for _, name := range []string{Central, North, South} {
		score := 0
		for _, re := range m.patterns[name] {
			score += len(re.FindAllStringIndex(text, -1))
		}
		if score > bestScore {
			best = name
			bestScore = score
		}
	}
	return best
}

// AddMapping registers a custom word replacement for a dialect.
func (m *Mapper) AddMapping(dialect, original, replacement string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mappings[dialect] == nil {
		m.mappings[dialect] = make(map[string]string)
	}
	m.mappings[dialect][original] = replacement
	m.replacers[dialect] = compileReplacer(m.mappings[dialect])
}

// replacer holds a dialect's replacement table as one alternation pattern,
// longest key first so phrases win over their component words.
type replacer struct {
	re   *regexp.Regexp
	repl map[string]string
}

func compileReplacer(mapping map[string]string) *replacer {
	keys := make([]string, 0, len(mapping))
	for key, val := range mapping {
		if key == val {
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	quoted := make([]string, len(keys))
	repl := make(map[string]string, len(keys))
	for i, key := range keys {
		lower := strings.ToLower(key)
		quoted[i] = regexp.QuoteMeta(lower)
		repl[lower] = mapping[key]
	}
	return &replacer{
		// RE2's \b is ASCII-only, so the leading boundary is a non-letter
		// rune (or the string start). The trailing boundary is checked by
		// hand in apply, zero-width, so adjacent occurrences still match.
		re:   regexp.MustCompile(`(?i)(?:^|\PL)(` + strings.Join(quoted, "|") + `)`),
		repl: repl,
	}
}

func (r *replacer) apply(text string) string {
	var b strings.Builder
	pos := 0
	for pos < len(text) {
		loc := r.re.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		keyStart, keyEnd := pos+loc[2], pos+loc[3]
		if keyEnd < len(text) {
			next, _ := utf8.DecodeRuneInString(text[keyEnd:])
			if unicode.IsLetter(next) {
				// Key is a prefix of a longer word; resume past its first rune.
				_, size := utf8.DecodeRuneInString(text[keyStart:])
				b.WriteString(text[pos : keyStart+size])
				pos = keyStart + size
				continue
			}
		}
		b.WriteString(text[pos:keyStart])
		b.WriteString(r.repl[strings.ToLower(text[keyStart:keyEnd])])
		pos = keyEnd
	}
	b.WriteString(text[pos:])
	return b.String()
}

func compilePatterns(words ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(words))
	for _, w := range words {
		res = append(res, wordPattern(w))
	}
	return res
}

// wordPattern matches a standalone word for detection scoring.
func wordPattern(key string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(^|\PL)` + regexp.QuoteMeta(strings.ToLower(key)) + `(\PL|$)`)
}
