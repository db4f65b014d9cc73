package config

import (
	"testing"

	"golang.org/x/text/language"
)

func TestParseLanguage(t *testing.T) {
	tests := []struct {
		name        string
		langTag     string
		expectError bool
		expected    string
	}{
		{"English", "en", false, "en"},
		{"Chinese Simplified", "zh-CN", false, "zh-CN"},
		{"Japanese", "ja", false, "ja"},
		{"Uppercase tag", "EN", false, "en"},
		{"Empty defaults to English", "", false, "en"},
		{"Garbage tag", "not a tag!", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc, err := ParseLanguage(tt.langTag)
			if (err != nil) != tt.expectError {
				t.Fatalf("ParseLanguage(%q) error = %v, expectError = %v", tt.langTag, err, tt.expectError)
			}
			if err != nil {
				return
			}
			if lc.String() != tt.expected {
				t.Errorf("String() = %s, want %s", lc.String(), tt.expected)
			}
		})
	}
}

func TestLanguageConfig_Tag(t *testing.T) {
	lc, err := ParseLanguage("en")
	if err != nil {
		t.Fatalf("ParseLanguage failed: %v", err)
	}
	if lc.Tag() != language.English {
		t.Errorf("Tag() = %v, want English", lc.Tag())
	}
}

func TestLanguageConfig_PromptInstruction(t *testing.T) {
	tests := []struct {
		name     string
		langTag  string
		expected string
	}{
		{"Chinese", "zh", "Chinese (Simplified Chinese preferred)"},
		{"Chinese regional", "zh-CN", "Chinese (Simplified Chinese preferred)"},
		{"English", "en", "English"},
		{"Japanese", "ja", "Japanese"},
		{"Korean", "ko", "Korean"},
		{"French", "fr", "French"},
		{"German", "de", "German"},
		{"Spanish", "es", "Spanish"},
		{"Portuguese", "pt", "Portuguese"},
		{"Russian", "ru", "Russian"},
		{"Arabic", "ar", "Arabic"},
		{"Uncommon falls back to tag", "fi", "fi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc, err := ParseLanguage(tt.langTag)
			if err != nil {
				t.Fatalf("ParseLanguage failed: %v", err)
			}
			if got := lc.PromptInstruction(); got != tt.expected {
				t.Errorf("PromptInstruction() = %s, want %s", got, tt.expected)
			}
		})
	}
}
