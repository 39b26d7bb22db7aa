package llm

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

const (
	correctionSystemPrompt = `You are a professional transcript editor. Correct speech recognition errors, fix punctuation and casing, and split the text into readable paragraphs. Keep the original meaning and wording wherever possible. Do not add commentary. Return only the corrected text.`
	summarySystemPrompt    = `You write concise summaries of spoken content. Return only the summary.`
	keywordsSystemPrompt   = `You extract keywords from spoken content. Return only the keywords as a comma-separated list.`
)

// LanguageName returns the English display name for a language code,
// or "" when the code is empty, "auto" or unknown.
func LanguageName(code string) string {
	code = strings.TrimSpace(code)
	if code == "" || strings.EqualFold(code, "auto") {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return ""
	}
	return display.English.Tags().Name(tag)
}

func correctionPrompt(text, lang string) (string, string) {
	user := "Correct the following transcript"
	if name := LanguageName(lang); name != "" {
		user += fmt.Sprintf(". The text is in %s; keep the corrected text in %s", name, name)
	}
	return correctionSystemPrompt, user + ":\n\n" + text
}

func summaryPrompt(text, lang string) (string, string) {
	user := "Write a summary of the main points of the following transcript"
	if name := LanguageName(lang); name != "" {
		user += " in " + name
	}
	return summarySystemPrompt, user + ":\n\n" + text
}

func keywordsPrompt(text, lang string) (string, string) {
	user := "List the 5 to 10 most important keywords of the following transcript"
	if name := LanguageName(lang); name != "" {
		user += ", written in " + name
	}
	return keywordsSystemPrompt, user + ":\n\n" + text
}

// DetectLanguage guesses "zh" or "en" from the script of text, else "auto".
func DetectLanguage(text string) string {
	var han, latin int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			han++
		case r < unicode.MaxASCII && unicode.IsLetter(r):
			latin++
		}
	}
	switch {
	case han == 0 && latin == 0:
		return "auto"
	case han > 0 && han*2 >= latin/4:
		// a Han character carries roughly a word; Latin letters do not
		return "zh"
	case latin > 0:
		return "en"
	default:
		return "auto"
	}
}

var listMarker = regexp.MustCompile(`^(?:[-*•]\s*|\d+[.)]\s+)`)

// ParseKeywords splits a model reply into distinct keywords.
func ParseKeywords(content string) []string {
	fields := strings.FieldsFunc(content, func(r rune) bool {
		switch r {
		case ',', '\n', ';', '、', '，', '；':
			return true
		}
		return false
	})

	seen := make(map[string]struct{}, len(fields))
	keywords := make([]string, 0, len(fields))
	for _, f := range fields {
		kw := listMarker.ReplaceAllString(strings.TrimSpace(f), "")
		kw = strings.TrimSpace(strings.Trim(kw, `"'`))
		if kw == "" {
			continue
		}
		key := strings.ToLower(kw)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keywords = append(keywords, kw)
	}
	return keywords
}

// EstimateTokens approximates the token count of text at 0.75 words per token.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(float64(words) / 0.75)
}
