package domain

import "unicode"

// QueryLanguage selects the full-text configuration for a query.
type QueryLanguage string

// Detected query languages.
const (
	LanguageEnglish QueryLanguage = "english"
	LanguageRussian QueryLanguage = "russian"
	LanguageMixed   QueryLanguage = "mixed"
)

// FullTextConfig returns the Postgres text-search configuration for
// the language. Mixed-script queries use the stemmer-free "simple"
// configuration so neither script is mangled.
func (l QueryLanguage) FullTextConfig() string {
	switch l {
	case LanguageEnglish:
		return "english"
	case LanguageRussian:
		return "russian"
	default:
		return "simple"
	}
}

// mixedThreshold is the minority-script share above which a query is
// treated as mixed rather than dominated by one script.
const mixedThreshold = 0.25

// DetectLanguage classifies a query by its dominant script. Queries
// with no letters at all, or with a substantial share of both scripts,
// are classified as mixed.
func DetectLanguage(query string) QueryLanguage {
	var latin, cyrillic int
	for _, r := range query {
		switch {
		case unicode.In(r, unicode.Latin):
			latin++
		case unicode.In(r, unicode.Cyrillic):
			cyrillic++
		}
	}

	total := latin + cyrillic
	if total == 0 {
		return LanguageMixed
	}

	minority := latin
	if cyrillic < latin {
		minority = cyrillic
	}
	if float64(minority)/float64(total) > mixedThreshold {
		return LanguageMixed
	}

	if cyrillic > latin {
		return LanguageRussian
	}
	return LanguageEnglish
}
