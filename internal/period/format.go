package period

import (
	"fmt"

	"golang.org/x/text/language"
)

// labelSet holds the month abbreviations and quarter prefix for one language.
type labelSet struct {
	months  [12]string
	quarter string
}

var labelSets = map[string]labelSet{
	"en": {months: [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}, quarter: "Q"},
	"de": {months: [12]string{"Jan", "Feb", "Mär", "Apr", "Mai", "Jun", "Jul", "Aug", "Sep", "Okt", "Nov", "Dez"}, quarter: "Q"},
	"fr": {months: [12]string{"janv.", "févr.", "mars", "avr.", "mai", "juin", "juil.", "août", "sept.", "oct.", "nov.", "déc."}, quarter: "T"},
	"es": {months: [12]string{"ene", "feb", "mar", "abr", "may", "jun", "jul", "ago", "sept", "oct", "nov", "dic"}, quarter: "T"},
	"it": {months: [12]string{"gen", "feb", "mar", "apr", "mag", "giu", "lug", "ago", "set", "ott", "nov", "dic"}, quarter: "T"},
	"pt": {months: [12]string{"jan", "fev", "mar", "abr", "mai", "jun", "jul", "ago", "set", "out", "nov", "dez"}, quarter: "T"},
	"nl": {months: [12]string{"jan", "feb", "mrt", "apr", "mei", "jun", "jul", "aug", "sep", "okt", "nov", "dec"}, quarter: "K"},
}

var matcher = language.NewMatcher([]language.Tag{
	language.English,
	language.German,
	language.French,
	language.Spanish,
	language.Italian,
	language.Portuguese,
	language.Dutch,
})

// ParseLocale parses a BCP 47 tag, falling back to English.
func ParseLocale(s string) language.Tag {
	if s == "" {
		return language.English
	}
	t, err := language.Parse(s)
	if err != nil {
		return language.English
	}
	return t
}

func labelsFor(locale language.Tag) labelSet {
	tag, _, _ := matcher.Match(locale)
	base, _ := tag.Base()
	if ls, ok := labelSets[base.String()]; ok {
		return ls
	}
	return labelSets["en"]
}

// Format renders a display label for key, e.g. "Jan 2024", "Q1 2024",
// "2024" or "15 Jan 2024". When g is coarser than the key, the key is
// grouped to g first; otherwise the key's own granularity is used.
// Unparseable keys are returned unchanged.
func Format(key string, g Granularity, locale language.Tag) string {
	k, err := Parse(key)
	if err != nil {
		return key
	}
	if g.Valid() && k.Granularity.FinerThan(g) {
		if t, err := k.Truncate(g); err == nil {
			k = t
		}
	}
	ls := labelsFor(locale)
	switch k.Granularity {
	case Daily:
		return fmt.Sprintf("%d %s %d", k.Day, ls.months[k.Month-1], k.Year)
	case Monthly:
		return fmt.Sprintf("%s %d", ls.months[k.Month-1], k.Year)
	case Quarterly:
		return fmt.Sprintf("%s%d %d", ls.quarter, k.Quarter, k.Year)
	}
	return fmt.Sprintf("%d", k.Year)
}
