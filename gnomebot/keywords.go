package gnomebot

// animalKeywords is the built-in list of animal names. It short-circuits
// encyclopedia lookups and is the fallback when lookups find nothing.
var animalKeywords = []string{
	"acadian flycatcher", "achrioptera manga", "ackie monitor", "addax", "adélie penguin",
	"admiral butterfly", "aesculapian snake", "affenpinscher", "afghan hound",
	"african bullfrog", "african bush elephant", "african civet", "african clawed frog",
	"african elephant", "african fish eagle", "african forest elephant",
	"african golden cat", "african grey parrot", "african jacana", "african palm civet",
	"african penguin", "african sugarcane borer", "african tree toad", "african wild dog",
	"africanized bee (killer bee)", "agama lizard", "agkistrodon contortrix", "agouti",
	"aidi", "ainu", "airedale terrier", "airedoodle", "akbash", "akita", "akita shepherd",
	"alabai (central asian shepherd)", "red panda", "alaskan husky", "alaskan klee kai",
	"alaskan malamute", "alaskan pollock", "alaskan shepherd", "albacore tuna",
	"albatross", "albertonectes", "albino (amelanistic) corn snake",
	"aldabra giant tortoise", "alligator gar", "allosaurus", "alpaca",
	"alpine dachsbracke", "alpine goat", "alusky", "amano shrimp", "amargasaurus",
	"amazon parrot", "amazon river dolphin (pink dolphin)", "amazon tree boa",
	"amazonian royal flycatcher", "amberjack", "ambrosia beetle", "american alligator",
	"lion", "tiger", "bear", "elephant", "giraffe", "zebra", "monkey", "gorilla", "panda",
	"koala", "kangaroo", "penguin", "dolphin", "whale", "shark", "octopus", "eagle",
	"owl", "parrot", "flamingo", "crocodile", "snake", "turtle", "frog", "butterfly",
	"bee", "ant", "spider", "wolf", "fox", "deer", "rabbit", "squirrel", "cat", "dog",
	"horse", "cow", "sheep", "goat", "pig", "chicken", "duck", "bird", "insect", "fish",
	"crab", "lobster", "snail", "slug", "flea", "fly", "beetle", "scorpion", "centipede",
	"moth", "ladybug", "grasshopper", "cicada", "dragonfly", "lacewing", "lionfish",
}
