// Package reply holds the user-visible reply strings. Operators can
// override them with a YAML file; anything left unset keeps its default.
package reply

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Templates are the canned replies the dispatcher sends outside the
// success path. Placeholders: {mention} in Help, {reason} in Blocked.
type Templates struct {
	Help    string `yaml:"help"`
	Blocked string `yaml:"blocked"`
	Empty   string `yaml:"empty"`
	Failure string `yaml:"failure"`
}

func Defaults() *Templates {
	return &Templates{
		Help:    "Hello, {mention}! Need help? Ask me a question by mentioning me, or message me here directly.",
		Blocked: "I couldn't generate a response ({reason}). Try rephrasing your question.",
		Empty:   "I couldn't generate a response. Try rephrasing your question or check that the content is appropriate.",
		Failure: "Sorry, something went wrong while processing your request. Please try again later.",
	}
}

// Load reads template overrides from a YAML file. Fields absent from the
// file keep their defaults.
func Load(path string) (*Templates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	t := Defaults()
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parse templates %s: %w", path, err)
	}
	return t, nil
}

// RenderHelp addresses the help text to a user.
func (t *Templates) RenderHelp(mention string) string {
	return strings.ReplaceAll(t.Help, "{mention}", mention)
}

// RenderBlocked fills in the backend's safety classification code.
func (t *Templates) RenderBlocked(reason string) string {
	return strings.ReplaceAll(t.Blocked, "{reason}", reason)
}
