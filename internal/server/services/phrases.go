package services

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/voicemfa/internal/common"
)

// Phrases follow "<adjective> <noun> <verb> <preposition> <noun> <NN>", which
// gives 64^4 * 16 * 100 (about 2.7e10) combinations.
var (
	phraseAdjectives = [...]string{
		"amber", "ancient", "bitter", "bold", "brave", "bright", "broken", "calm",
		"clever", "cold", "crimson", "curious", "dark", "distant", "dusty", "eager",
		"early", "empty", "fancy", "fierce", "gentle", "giant", "golden", "green",
		"hidden", "hollow", "humble", "icy", "jolly", "kind", "late", "lazy",
		"little", "lively", "lonely", "lucky", "mighty", "misty", "modern", "narrow",
		"noble", "odd", "orange", "patient", "plain", "proud", "quiet", "rapid",
		"rough", "royal", "rusty", "silent", "silver", "simple", "sleepy", "smooth",
		"solid", "steady", "sunny", "swift", "tender", "tiny", "warm", "wild",
	}
	phraseNouns = [...]string{
		"anchor", "apple", "arrow", "badger", "banner", "basket", "beacon", "bridge",
		"camel", "candle", "canyon", "castle", "cedar", "cloud", "comet", "copper",
		"desert", "dragon", "engine", "falcon", "feather", "forest", "fountain", "garden",
		"glacier", "hammer", "harbor", "helmet", "island", "jacket", "ladder", "lantern",
		"lemon", "meadow", "mirror", "monkey", "mountain", "needle", "ocean", "orchard",
		"otter", "palace", "pebble", "pepper", "pillow", "planet", "pocket", "rabbit",
		"river", "rocket", "saddle", "salmon", "shadow", "signal", "spider", "summit",
		"tiger", "timber", "tower", "tunnel", "valley", "violin", "wagon", "window",
	}
	phraseVerbs = [...]string{
		"admires", "borrows", "builds", "carries", "catches", "chases", "climbs", "collects",
		"counts", "covers", "crosses", "dances", "draws", "dreams", "drops", "finds",
		"fixes", "follows", "gathers", "greets", "guards", "guides", "hides", "holds",
		"hunts", "jumps", "kicks", "lifts", "likes", "loses", "marks", "meets",
		"moves", "opens", "paints", "passes", "pulls", "pushes", "reaches", "reads",
		"rides", "rolls", "saves", "sees", "shakes", "sings", "sketches", "spins",
		"splits", "steers", "swings", "tastes", "throws", "touches", "tracks", "trades",
		"visits", "walks", "washes", "watches", "weighs", "whistles", "wins", "wraps",
	}
	phrasePrepositions = [...]string{
		"above", "across", "after", "against", "along", "around", "behind", "below",
		"beneath", "beside", "beyond", "near", "over", "past", "through", "under",
	}
)

// phraseSpace is the number of distinct phrases NewPhrase can produce.
func phraseSpace() uint64 {
	return uint64(len(phraseAdjectives)) * uint64(len(phraseNouns)) * uint64(len(phraseVerbs)) *
		uint64(len(phrasePrepositions)) * uint64(len(phraseNouns)) * 100
}

// NewPhrase draws a challenge phrase from crypto/rand.
func NewPhrase() (string, error) {
	var idx [6]int
	sizes := [6]int{len(phraseAdjectives), len(phraseNouns), len(phraseVerbs), len(phrasePrepositions), len(phraseNouns), 100}
	for i, n := range sizes {
		v, err := common.RandIntn(n)
		if err != nil {
			return "", fmt.Errorf("phrase: %w", err)
		}
		idx[i] = v
	}
	return fmt.Sprintf("%s %s %s %s %s %02d",
		phraseAdjectives[idx[0]], phraseNouns[idx[1]], phraseVerbs[idx[2]],
		phrasePrepositions[idx[3]], phraseNouns[idx[4]], idx[5]), nil
}

// MatchPhrase counts the expected tokens that occur in the transcript and
// accepts when at most allowedMisses are missing. At least one token must
// always match.
func MatchPhrase(expected, transcript string, allowedMisses int) bool {
	tokens := strings.Fields(strings.ToLower(expected))
	if len(tokens) == 0 {
		return false
	}
	heard := strings.ToLower(transcript)

	matched := 0
	for _, tok := range tokens {
		if strings.Contains(heard, tok) {
			matched++
		}
	}

	need := len(tokens) - allowedMisses
	if need < 1 {
		need = 1
	}
	return matched >= need
}
