package domain

import "strings"

const (
	LanguageSpanish    = "es"
	LanguagePortuguese = "pt"
	LanguageEnglish    = "en"
)

// DefaultSpeechLocale is used for anything that is not a translation.
const DefaultSpeechLocale = "es-ES"

var speechLocales = map[string]string{
	LanguageSpanish:    "es-ES",
	LanguagePortuguese: "pt-BR",
	LanguageEnglish:    "en-US",
}

// SupportedLanguage reports whether code is one of the translation languages.
func SupportedLanguage(code string) bool {
	_, ok := speechLocales[normalizeLanguage(code)]
	return ok
}

// SpeechLocale maps a two-letter language code to a synthesis locale.
func SpeechLocale(code string) (string, bool) {
	locale, ok := speechLocales[normalizeLanguage(code)]
	return locale, ok
}

// CounterpartLanguage returns the other half of the es/pt translation pair.
func CounterpartLanguage(code string) string {
	if normalizeLanguage(code) == LanguagePortuguese {
		return LanguageSpanish
	}
	return LanguagePortuguese
}

// LanguageName is the human readable name used in translation prompts.
func LanguageName(code string) string {
	switch normalizeLanguage(code) {
	case LanguageSpanish:
		return "Spanish"
	case LanguagePortuguese:
		return "Portuguese"
	case LanguageEnglish:
		return "English"
	default:
		return code
	}
}

func normalizeLanguage(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
