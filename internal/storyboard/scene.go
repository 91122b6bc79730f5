package storyboard

import "strconv"

// Scene is one storyboard entry: a narration line, the prompt used to
// illustrate it, and a reference to the rendered image once it exists.
// IDs are assigned at creation, match creation order, and are never reused
// within a board.
type Scene struct {
	ID             int
	ImagePrompt    string
	NarratorScript string
	ImageURL       string
}

// SceneSeed is the pre-id form of a scene used when a board is (re)built.
type SceneSeed struct {
	ImagePrompt    string
	NarratorScript string
}

// ImagePath returns the stable daemon-relative reference for a scene's
// rendered image. The gateway serves the bytes at this path.
func ImagePath(id int) string {
	return "/api/scenes/" + strconv.Itoa(id) + "/image"
}
