package report

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Language is a report localization code.
type Language string

const (
	// LangEnglish renders the report in English.
	LangEnglish Language = "en"
	// LangTurkish renders the report in Turkish.
	LangTurkish Language = "tr"
)

// ErrUnsupportedLanguage is returned when an unknown language code is requested.
var ErrUnsupportedLanguage = errors.New("report: unsupported language")

//go:embed *.json
var localeFS embed.FS

var locales = map[Language]map[string]string{}

func init() {
	entries, err := localeFS.ReadDir(".")
	if err != nil {
		panic(fmt.Sprintf("report: locales: %v", err))
	}
	for _, e := range entries {
		data, err := localeFS.ReadFile(e.Name())
		if err != nil {
			panic(fmt.Sprintf("report: load locale %s: %v", e.Name(), err))
		}
		var parsed map[string]string
		if err := json.Unmarshal(data, &parsed); err != nil {
			panic(fmt.Sprintf("report: parse locale %s: %v", e.Name(), err))
		}
		locales[Language(strings.TrimSuffix(e.Name(), ".json"))] = parsed
	}
}

// Translator resolves localized strings for a specific language.
type Translator struct {
	lang Language
	data map[string]string
}

// NewTranslator returns the translator for lang. Unknown languages get English.
func NewTranslator(lang Language) Translator {
	data, ok := locales[lang]
	if !ok {
		lang = LangEnglish
		data = locales[LangEnglish]
	}
	return Translator{lang: lang, data: data}
}

func (t Translator) Lang() Language {
	return t.lang
}

// T returns the string for key, falling back to English and then to the key
// itself.
func (t Translator) T(key string) string {
	if val, ok := t.data[key]; ok {
		return val
	}
	if t.lang != LangEnglish {
		if val, ok := locales[LangEnglish][key]; ok {
			return val
		}
	}
	return key
}

func (t Translator) Format(key string, args ...interface{}) string {
	return fmt.Sprintf(t.T(key), args...)
}

// ParseLanguage maps a --lang flag value to a Language.
func ParseLanguage(lang string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "", "en", "en-us", "en-gb", "english":
		return LangEnglish, nil
	case "tr", "tr-tr", "turkish", "türkçe", "turkce":
		return LangTurkish, nil
	default:
		return LangEnglish, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}
}
