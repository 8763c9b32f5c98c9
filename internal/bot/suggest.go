package bot

import (
	"github.com/hbollon/go-edlib"
)

// Commands lists every command the bot answers, without the slash.
var Commands = []string{
	"film", "filmr", "films",
	"everyone", "watching", "watch", "unwatch",
	"setname", "removename", "myname",
	"coin", "coingirl", "randomgirl",
	"vote", "poll", "gif",
	"help", "help_film", "help_film_genres", "help_film_countries",
	"dm",
}

const suggestThreshold = 0.8

// Suggest returns the known command closest to cmd by Jaro-Winkler
// similarity, if any is close enough. Exact matches are not suggestions.
func Suggest(cmd string) (string, bool) {
	if cmd == "" {
		return "", false
	}
	best, bestScore := "", float32(0)
	for _, c := range Commands {
		if c == cmd {
			return "", false
		}
		score := edlib.JaroWinklerSimilarity(cmd, c)
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	if bestScore < suggestThreshold {
		return "", false
	}
	return best, true
}
