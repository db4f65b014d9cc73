// Package config provides configuration management for the application.
package config

import (
	"strings"

	"golang.org/x/text/language"
)

// LanguageConfig is a validated review output language
type LanguageConfig struct {
	tag language.Tag
}

// ParseLanguage parses an ISO language tag such as "en" or "zh-CN".
// An empty tag defaults to English; an unparseable tag is an error.
func ParseLanguage(langTag string) (*LanguageConfig, error) {
	if langTag == "" {
		return &LanguageConfig{tag: language.English}, nil
	}

	tag, err := language.Parse(langTag)
	if err != nil {
		// Tags arrive from per-repo review configs with mixed casing
		tag, err = language.Parse(strings.ToLower(langTag))
		if err != nil {
			return nil, err
		}
	}

	return &LanguageConfig{tag: tag}, nil
}

// Tag returns the underlying language tag
func (lc *LanguageConfig) Tag() language.Tag {
	return lc.tag
}

// String returns the language tag as a string (e.g., "en", "zh-CN")
func (lc *LanguageConfig) String() string {
	return lc.tag.String()
}

// PromptInstruction returns the language name used in prompt
// instructions. Common languages get their English name; anything else
// falls back to the raw tag, which models generally understand.
func (lc *LanguageConfig) PromptInstruction() string {
	base, _ := lc.tag.Base()
	switch base.String() {
	case "zh":
		return "Chinese (Simplified Chinese preferred)"
	case "en":
		return "English"
	case "ja":
		return "Japanese"
	case "ko":
		return "Korean"
	case "fr":
		return "French"
	case "de":
		return "German"
	case "es":
		return "Spanish"
	case "pt":
		return "Portuguese"
	case "ru":
		return "Russian"
	case "ar":
		return "Arabic"
	default:
		return lc.tag.String()
	}
}
