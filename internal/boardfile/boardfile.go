package boardfile

import (
	"fmt"
	"io/ioutil"
	"os"

	"gopkg.in/yaml.v3"
)

// Document is the on-disk form of a storyboard export.
type Document struct {
	Version int          `yaml:"version"`
	Title   string       `yaml:"title,omitempty"`
	Scenes  []SceneEntry `yaml:"scenes"`
}

type SceneEntry struct {
	ID             int    `yaml:"id"`
	ImagePrompt    string `yaml:"image_prompt"`
	NarratorScript string `yaml:"narrator_script"`
}

// CurrentVersion is written on export and the only version accepted on import.
const CurrentVersion = 1

// Load reads a board document from disk.
func Load(path string) (Document, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	return Parse(data)
}

// Parse decodes a board document from YAML bytes.
func Parse(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decode board file: %w", err)
	}
	return doc, nil
}

// Validate ensures the document can rebuild a storyboard: a supported
// version, contiguous scene ids starting at zero, and the narration and
// prompt text playback and regeneration need.
func Validate(doc Document) error {
	if doc.Version != CurrentVersion {
		return fmt.Errorf("unsupported board file version %d", doc.Version)
	}
	if len(doc.Scenes) == 0 {
		return fmt.Errorf("board file has no scenes")
	}
	for i, scene := range doc.Scenes {
		if scene.ID != i {
			return fmt.Errorf("scene ids must be contiguous from 0, got %d at position %d", scene.ID, i)
		}
		if scene.ImagePrompt == "" {
			return fmt.Errorf("scene %d has no image prompt", scene.ID)
		}
		if scene.NarratorScript == "" {
			return fmt.Errorf("scene %d has no narration", scene.ID)
		}
	}
	return nil
}

// Encode renders the document as YAML.
func Encode(doc Document) ([]byte, error) {
	return yaml.Marshal(doc)
}

// Write stores the document at path.
func Write(path string, doc Document) error {
	data, err := Encode(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
