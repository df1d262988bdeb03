package bot

import "regexp"

var steamIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`profiles/(\d{17})`),
	regexp.MustCompile(`steamid=(\d{17})`),
}

var steamIDExact = regexp.MustCompile(`^\d{17}$`)

// ExtractSteamID returns the SteamID64 embedded in a community link, or ""
// when none is found.
func ExtractSteamID(text string) string {
	for _, re := range steamIDPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

// IsSteamID reports whether s is a bare 17 digit SteamID64.
func IsSteamID(s string) bool {
	return steamIDExact.MatchString(s)
}
