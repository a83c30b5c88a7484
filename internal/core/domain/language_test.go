package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  QueryLanguage
	}{
		{"english query", "budget forecast for next quarter", LanguageEnglish},
		{"russian query", "прогноз бюджета на квартал", LanguageRussian},
		{"mixed query", "бюджет forecast отчёт report план plan", LanguageMixed},
		{"digits only", "2024 12 31", LanguageMixed},
		{"empty", "", LanguageMixed},
		{"english with punctuation", "claim 1: a method, comprising...", LanguageEnglish},
		{"dominant russian with latin token", "отчёт по продажам API за квартал", LanguageRussian},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLanguage(tt.query))
		})
	}
}

func TestQueryLanguage_FullTextConfig(t *testing.T) {
	assert.Equal(t, "english", LanguageEnglish.FullTextConfig())
	assert.Equal(t, "russian", LanguageRussian.FullTextConfig())
	assert.Equal(t, "simple", LanguageMixed.FullTextConfig())
	assert.Equal(t, "simple", QueryLanguage("unknown").FullTextConfig())
}
