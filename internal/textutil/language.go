package textutil

import (
	"strings"
	"unicode"
)

// Language codes
const (
	LangEnglish  = "en"
	LangHebrew   = "he"
	LangArabic   = "ar"
	LangRussian  = "ru"
	LangChinese  = "zh"
	LangJapanese = "ja"
	LangKorean   = "ko"
)

// minScriptRatio is the share of letters a script needs before it wins over English
const minScriptRatio = 0.1

// Language represents a detected language
type Language struct {
	Code       string
	Name       string
	Confidence float64
}

var alphabeticScripts = []struct {
	code  string
	name  string
	table *unicode.RangeTable
}{
	{LangHebrew, "Hebrew", unicode.Hebrew},
	{LangArabic, "Arabic", unicode.Arabic},
	{LangRussian, "Russian", unicode.Cyrillic},
	{LangKorean, "Korean", unicode.Hangul},
}

// DetectLanguage guesses the language of text from the scripts its letters
// are written in. Latin-script text is reported as English.
func DetectLanguage(text string) Language {
	english := Language{Code: LangEnglish, Name: "English"}

	counts := make([]int, len(alphabeticScripts))
	var letters, han, kana int
	for _, r := range strings.TrimSpace(text) {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		switch {
		case unicode.Is(unicode.Hiragana, r), unicode.Is(unicode.Katakana, r):
			kana++
			continue
		case unicode.Is(unicode.Han, r):
			han++
			continue
		}
		for i, s := range alphabeticScripts {
			if unicode.Is(s.table, r) {
				counts[i]++
				break
			}
		}
	}
	if letters == 0 {
		return english
	}

	best := english
	for i, s := range alphabeticScripts {
		ratio := float64(counts[i]) / float64(letters)
		if ratio > minScriptRatio && ratio > best.Confidence {
			best = Language{Code: s.code, Name: s.name, Confidence: ratio}
		}
	}

	// Han is shared by Chinese and Japanese; any real share of kana means Japanese
	cjk := float64(han+kana) / float64(letters)
	if cjk > minScriptRatio && cjk > best.Confidence {
		if float64(kana)/float64(letters) > 0.05 {
			return Language{Code: LangJapanese, Name: "Japanese", Confidence: cjk}
		}
		return Language{Code: LangChinese, Name: "Chinese", Confidence: cjk}
	}

	if best.Code == LangEnglish {
		best.Confidence = 1
		for _, n := range counts {
			best.Confidence -= float64(n) / float64(letters)
		}
	}
	return best
}

// DigestInstruction tells the summarizer which language to write in. English
// needs no instruction and returns "".
func DigestInstruction(lang Language) string {
	switch lang.Code {
	case LangHebrew:
		return "Write the headline and summaries in Hebrew (עברית)."
	case LangArabic:
		return "Write the headline and summaries in Arabic (العربية)."
	case LangRussian:
		return "Write the headline and summaries in Russian (Русский)."
	case LangChinese:
		return "Write the headline and summaries in Chinese (中文)."
	case LangJapanese:
		return "Write the headline and summaries in Japanese (日本語)."
	case LangKorean:
		return "Write the headline and summaries in Korean (한국어)."
	default:
		return ""
	}
}
