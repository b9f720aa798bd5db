package main

import (
	"fmt"
	"math/rand"
	"strings"
)

const loremIpsum = "Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod tempor incididunt ut labore et dolore magna aliqua. Ut enim ad minim veniam, quis nostrud exercitation ullamco laboris nisi ut aliquip ex ea commodo consequat. Duis aute irure dolor in reprehenderit in voluptate velit esse cillum dolore eu fugiat nulla pariatur. Excepteur sint occaecat cupidatat non proident, sunt in culpa qui officia deserunt mollit anim id est laborum."

var loremWords = strings.Fields(loremIpsum)

var usernameWords = []string{
	"amber", "anchor", "badger", "beacon", "birch", "cobalt", "comet", "copper",
	"falcon", "fennel", "glacier", "harbor", "hazel", "indigo", "juniper", "kestrel",
	"lantern", "maple", "meadow", "nimbus", "onyx", "otter", "pepper", "quartz",
	"raven", "saffron", "sparrow", "thistle", "timber", "velvet", "willow", "zephyr",
}

// fragment returns the first 3-6 characters of word
func fragment(word string) string {
	n := len(word)
	switch {
	case n > 6:
		n = 3 + rand.Intn(4)
	case n > 3:
		n = 3
	}
	return word[:n]
}

// generateUsername combines fragments of two random words and the client id.
// The id keeps identities unique so a client can recognise its own echo.
func generateUsername(id int) string {
	word1 := usernameWords[rand.Intn(len(usernameWords))]
	word2 := usernameWords[rand.Intn(len(usernameWords))]

	username := strings.ToLower(fragment(word1) + fragment(word2))
	suffix := fmt.Sprintf("%d", id)
	if len(username)+len(suffix) > 20 {
		username = username[:20-len(suffix)]
	}
	return username + suffix
}

// randomMessage returns 5-20 lorem words
func randomMessage() string {
	count := 5 + rand.Intn(16)
	words := make([]string, count)
	for i := range words {
		words[i] = loremWords[rand.Intn(len(loremWords))]
	}
	return strings.Join(words, " ")
}
