package protocol

import (
	"fmt"
	"log/slog"

	"github.com/pion/randutil"
)

var (
	trees = []string{
		"aspen", "birch", "cedar", "cypress", "elm", "fir", "hazel", "juniper", "larch", "linden",
		"maple", "oak", "olive", "pine", "poplar", "rowan", "spruce", "sycamore", "willow", "yew",
	}
	waters = []string{
		"brook", "cove", "creek", "delta", "estuary", "fjord", "harbor", "inlet", "lagoon", "lake",
		"marsh", "pond", "rapids", "reef", "river", "shoal", "spring", "strait", "tide", "wave",
	}
	moods = []string{
		"bright", "calm", "clear", "cozy", "gentle", "golden", "kind", "light", "mellow", "mild",
		"patient", "quiet", "serene", "silver", "soft", "steady", "sunny", "tender", "warm", "wise",
	}
	birds = []string{
		"heron", "finch", "robin", "wren", "swallow", "sparrow", "plover", "oriole", "lark", "kestrel",
		"egret", "crane", "dove", "puffin", "tern", "warbler", "swift", "thrush", "pelican", "osprey",
	}
)

// NewRoomID returns a memorable four-word room id such as "calm-cedar-heron-cove".
func NewRoomID() string {
	return fmt.Sprintf("%s-%s-%s-%s", pick(moods), pick(trees), pick(birds), pick(waters))
}

func pick(words []string) string {
	n, err := randutil.CryptoUint64()
	if err != nil {
		slog.Error("Failed to read random source", "error", err)
		return words[0]
	}
	return words[n%uint64(len(words))]
}
