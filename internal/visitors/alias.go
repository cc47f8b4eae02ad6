package visitors

import "hash/fnv"

var aliasAdjectives = []string{
	"Curious", "Happy", "Clever", "Wise", "Playful", "Brave", "Swift", "Gentle", "Quiet", "Busy",
	"Daring", "Bold", "Lively", "Vibrant", "Nimble", "Speedy", "Bright", "Radiant", "Cheerful", "Jolly",
	"Creative", "Inventive", "Elegant", "Graceful", "Friendly", "Cordial", "Mystic", "Serene", "Calm", "Patient",
	"Sunny", "Rusty", "Silver", "Golden", "Misty", "Wandering", "Sleepy", "Witty", "Loyal", "Humble",
}

var aliasAnimals = []string{
	"Panda", "Fox", "Owl", "Otter", "Lion", "Eagle", "Deer", "Raven", "Beaver", "Koala",
	"Sloth", "Hamster", "Badger", "Bear", "Penguin", "Kangaroo", "Parrot", "Giraffe", "Heron", "Raccoon",
	"Lynx", "Meerkat", "Llama", "Squirrel", "Rabbit", "Hedgehog", "Falcon", "Wolf", "Dolphin", "Whale",
	"Seahorse", "Turtle", "Octopus", "Walrus", "Crab", "Starfish", "Sparrow", "Finch", "Swan", "Crane",
}

// Alias maps a visitor id to a stable, human readable name such as
// "Curious Otter". Different ids may share an alias.
func Alias(visitorID string) string {
	h := fnv.New32a()
	h.Write([]byte(visitorID))
	index := int(h.Sum32())

	adj := aliasAdjectives[index%len(aliasAdjectives)]
	animal := aliasAnimals[(index/len(aliasAdjectives))%len(aliasAnimals)]
	return adj + " " + animal
}
