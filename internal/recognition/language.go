package recognition

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// DefaultLanguage is the Tesseract code used when no language is given.
const DefaultLanguage = "eng"

// NormalizeLanguage turns a language identifier into Tesseract language
// codes. It accepts Tesseract codes ("eng", "chi_sim"), "+"-joined lists
// ("eng+deu") and BCP 47 tags ("en", "de-AT"), which are mapped to their
// ISO 639-3 base.
func NormalizeLanguage(id string) ([]string, error) {
	var langs []string
	for _, part := range strings.Split(id, "+") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if isTesseractCode(part) {
			langs = append(langs, part)
			continue
		}
		tag, err := language.Parse(part)
		if err != nil {
			return nil, fmt.Errorf("parsing language %q: %w", part, err)
		}
		base, _ := tag.Base()
		langs = append(langs, base.ISO3())
	}
	if len(langs) == 0 {
		return []string{DefaultLanguage}, nil
	}
	return langs, nil
}

// isTesseractCode matches three-letter codes and script variants like chi_sim
func isTesseractCode(s string) bool {
	if strings.Contains(s, "_") {
		return true
	}
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
