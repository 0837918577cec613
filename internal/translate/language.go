package translate

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Supported lists the languages offered by the target language picker.
var Supported = []language.Tag{
	language.English, language.Italian, language.German, language.French,
	language.Spanish, language.Portuguese, language.Dutch, language.Japanese,
	language.Chinese, language.Korean, language.Russian, language.Arabic,
}

var namer = display.English.Tags()

// ResolveLanguage accepts a BCP-47 code ("it"), an English language name
// ("Italian") or a self name ("Italiano") and returns the base code.
func ResolveLanguage(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("empty language")
	}
	for _, tag := range Supported {
		if strings.EqualFold(namer.Name(tag), s) || strings.EqualFold(display.Self.Name(tag), s) {
			return baseCode(tag), nil
		}
	}
	tag, err := language.Parse(s)
	if err != nil {
		return "", fmt.Errorf("unknown language %q: %w", s, err)
	}
	return baseCode(tag), nil
}

// DisplayName returns the English name of a language code.
func DisplayName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	return namer.Name(tag)
}

func baseCode(tag language.Tag) string {
	base, _ := tag.Base()
	return base.String()
}
