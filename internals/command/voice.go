package command

import (
	"strings"
)

var spokenReplacer = strings.NewReplacer(
	" equals ", "=",
	" equal to ", "=",
	" = ", "=",
)

// NormalizeVoice turns a speech transcript into command syntax:
// "Landing pageSlug equals promo." becomes "/landing pageSlug=promo".
func NormalizeVoice(transcript string) string {
	text := strings.TrimSpace(transcript)
	text = strings.TrimRight(text, ".!?,;")
	text = strings.TrimPrefix(text, "slash ")
	text = strings.TrimPrefix(text, "Slash ")
	text = spokenReplacer.Replace(text)

	keyword, rest, _ := strings.Cut(text, " ")
	keyword = strings.ToLower(strings.TrimPrefix(keyword, "/"))
	if keyword == "" {
		return ""
	}
	if rest == "" {
		return "/" + keyword
	}
	return "/" + keyword + " " + strings.TrimSpace(rest)
}

// ParseVoice normalizes a transcript and parses it.
func ParseVoice(transcript string) Parsed {
	parsed := Parse(NormalizeVoice(transcript))
	parsed.Raw = transcript
	return parsed
}
