package telegram

import "strconv"

// Game is a selectable Steam app.
type Game struct {
	Name  string
	AppID int64
}

// KnownGames are offered on the game keyboard, in display order.
var KnownGames = []Game{
	{Name: "CS2", AppID: 730},
	{Name: "Dota 2", AppID: 570},
	{Name: "TF2", AppID: 440},
	{Name: "Rust", AppID: 252490},
}

// GameName returns the short name of appID, or "AppID:<n>" when unknown.
func GameName(appID int64) string {
	for _, g := range KnownGames {
		if g.AppID == appID {
			return g.Name
		}
	}
	return "AppID:" + strconv.FormatInt(appID, 10)
}
