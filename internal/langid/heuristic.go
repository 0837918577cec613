// Package langid identifies the language of short recognized strings.
package langid

import (
	"context"
	"strings"
	"unicode"

	"github.com/MeKo-Tech/litelens/internal/vision"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// scripts maps writing systems that identify a language on their own.
var scripts = []struct {
	table *unicode.RangeTable
	tag   language.Tag
}{
	{unicode.Hangul, language.Korean},
	{unicode.Hiragana, language.Japanese},
	{unicode.Katakana, language.Japanese},
	{unicode.Han, language.Chinese},
	{unicode.Cyrillic, language.Russian},
	{unicode.Greek, language.Greek},
	{unicode.Arabic, language.Arabic},
	{unicode.Hebrew, language.Hebrew},
	{unicode.Thai, language.Thai},
}

// stopwords are frequent short words per Latin-script language.
var stopwords = map[language.Tag][]string{
	language.English: {"the", "and", "of", "to", "is", "in", "for", "with", "this", "you", "exit", "open", "no"},
	language.Italian: {"il", "la", "di", "che", "e", "per", "con", "non", "una", "sono", "del", "della", "uscita", "aperto"},
	language.German:  {"der", "die", "das", "und", "ist", "nicht", "mit", "ein", "eine", "zu", "für", "ausgang"},
	language.French:  {"le", "les", "des", "et", "est", "une", "pour", "avec", "pas", "du", "sortie", "ouvert"},
	language.Spanish: {"el", "los", "las", "y", "es", "una", "por", "con", "para", "del", "salida", "abierto"},
}

// diacritics hint at a language when no stopword decides.
var diacritics = map[rune]language.Tag{
	'ä': language.German, 'ö': language.German, 'ü': language.German, 'ß': language.German,
	'Ä': language.German, 'Ö': language.German, 'Ü': language.German,
	'ê': language.French, 'ç': language.French, 'â': language.French, 'î': language.French,
	'ô': language.French, 'û': language.French, 'ë': language.French, 'œ': language.French,
	'ñ': language.Spanish, 'á': language.Spanish, 'í': language.Spanish, 'ó': language.Spanish,
	'¿': language.Spanish, '¡': language.Spanish, 'Ñ': language.Spanish,
	'ì': language.Italian, 'ò': language.Italian, 'ù': language.Italian,
}

// Heuristic scores script, diacritics and stopwords. It needs no model and
// returns vision.Undetermined when the evidence is too thin.
type Heuristic struct {
	// MinLetters is the least number of letters required for an answer.
	MinLetters int
}

// NewHeuristic returns an identifier requiring at least two letters.
func NewHeuristic() *Heuristic {
	return &Heuristic{MinLetters: 2}
}

// Identify implements vision.LanguageIdentifier.
func (h *Heuristic) Identify(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return h.Detect(text).String(), nil
}

// Detect returns the best guess, or language.Und.
func (h *Heuristic) Detect(text string) language.Tag {
	text = norm.NFC.String(text)

	var letters, ascii int
	scriptHits := make(map[language.Tag]int)
	scores := make(map[language.Tag]int)
	for _, r := range text {
		if !unicode.IsLetter(r) {
			if tag, ok := diacritics[r]; ok {
				scores[tag] += 2
			}
			continue
		}
		letters++
		if r <= unicode.MaxASCII {
			ascii++
			continue
		}
		for _, s := range scripts {
			if unicode.Is(s.table, r) {
				scriptHits[s.tag]++
				break
			}
		}
		if tag, ok := diacritics[r]; ok {
			scores[tag] += 2
		}
	}
	if letters < h.MinLetters {
		return language.Und
	}

	// Non-Latin scripts decide on their own, with kana overriding shared Han.
	if scriptHits[language.Japanese] > 0 {
		return language.Japanese
	}
	if tag, n := best(scriptHits); n*2 >= letters {
		return tag
	}

	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	}) {
		for tag, words := range stopwords {
			for _, w := range words {
				if w == word {
					scores[tag] += 3
				}
			}
		}
	}

	if tag, n := best(scores); n > 0 && unique(scores, n) {
		return tag
	}
	if ascii*100/letters > 80 && len(scores) == 0 {
		return language.English
	}
	return language.Und
}

func best(m map[language.Tag]int) (language.Tag, int) {
	tag, top := language.Und, 0
	for t, n := range m {
		if n > top {
			tag, top = t, n
		}
	}
	return tag, top
}

func unique(m map[language.Tag]int, top int) bool {
	count := 0
	for _, n := range m {
		if n == top {
			count++
		}
	}
	return count == 1
}

var _ vision.LanguageIdentifier = (*Heuristic)(nil)
