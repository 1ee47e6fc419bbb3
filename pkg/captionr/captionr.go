// Package captionr captions image collections using vision-language models.
package captionr

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

var (
	// ErrNoFolders is returned when there is nothing to scan.
	ErrNoFolders = errors.New("folder is required")
	// ErrNoCaptionAction is returned when the configuration would not change any caption.
	ErrNoCaptionAction = errors.New("no captioning flags specified: use a model pass, a CLIP mode, find/replace, folder tagging or prepend/append text to initiate captioning")
	// ErrSkipConflict is returned when post-processing is requested without a model while existing captions are skipped.
	ErrSkipConflict = errors.New("--existing=skip cannot be used for find/replace, folder tagging or text prepending/appending unless a caption model is selected; choose a different --existing policy")
)

// Existing is the policy for reconciling a caption file that already exists.
type Existing string

const (
	ExistingSkip    Existing = "skip"
	ExistingIgnore  Existing = "ignore"
	ExistingCopy    Existing = "copy"
	ExistingPrepend Existing = "prepend"
	ExistingAppend  Existing = "append"
	ExistingFlavor  Existing = "flavor"
)

var existingPolicies = []Existing{ExistingSkip, ExistingIgnore, ExistingCopy, ExistingPrepend, ExistingAppend, ExistingFlavor}

// ParseExisting validates an existing-caption policy name.
func ParseExisting(s string) (Existing, error) {
	e := Existing(s)
	if !slices.Contains(existingPolicies, e) {
		return "", fmt.Errorf("unknown existing policy %q", s)
	}
	return e, nil
}

// ClipModes selects the descriptive categories the CLIP interrogator adds.
type ClipModes struct {
	Flavor   bool
	Artist   bool
	Medium   bool
	Movement bool
	Trending bool
}

// Enabled returns true if any CLIP category is requested.
func (m ClipModes) Enabled() bool {
	return m.Flavor || m.Artist || m.Medium || m.Movement || m.Trending
}

// Config holds configuration for a captioning run. It is not modified once a run begins.
type Config struct {
	Folders []string
	Output  string

	Existing  Existing
	CapLength int

	// ModelOrder is the backend fallback order; Passes are the enabled backends.
	ModelOrder  []string
	Passes      []string
	FailPhrases []string

	Clip           ClipModes
	ClipMethod     ClipMethod
	ClipMaxFlavors int

	IgnoreTags   string
	UniquifyTags bool
	FuzzRatio    float64

	Find    string
	Replace string

	FolderTag         bool
	FolderTagLevels   int
	FolderTagStop     string
	FolderTagPosition int

	PrependText string
	AppendText  string

	Preview     bool
	UseFilename bool
	UseMetadata bool
	CopyImages  bool
	Extension   string
	MaxDim      int
	Workers     int
	Quiet       bool
}

// DefaultConfig returns the defaults of the captionr command line.
func DefaultConfig() Config {
	return Config{
		Existing:          ExistingSkip,
		ModelOrder:        []string{"coca", "git", "blip"},
		FailPhrases:       ParseFailPhrases("a sign that says,writing that says,that says,with the word"),
		ClipMethod:        ClipFast,
		ClipMaxFlavors:    8,
		FuzzRatio:         60.0,
		FolderTagLevels:   1,
		FolderTagPosition: 1,
		Extension:         "txt",
		MaxDim:            768,
		Workers:           8,
	}
}

// Enabled returns true if the named backend pass was requested.
func (c Config) Enabled(name string) bool {
	return slices.Contains(c.Passes, name)
}

func (c Config) findReplace() bool {
	return c.Find != "" && c.Replace != ""
}

func (c Config) postProcessing() bool {
	return c.findReplace() || c.FolderTag || c.PrependText != "" || c.AppendText != ""
}

// Validate checks the configuration before any image is processed.
func (c Config) Validate() error {
	if len(c.Folders) == 0 {
		return ErrNoFolders
	}

	if c.Extension != "txt" && c.Extension != "caption" {
		return fmt.Errorf("unsupported caption extension %q", c.Extension)
	}

	if c.CapLength < 0 {
		return fmt.Errorf("cap length must not be negative: %d", c.CapLength)
	}

	if _, err := ParseExisting(string(c.Existing)); err != nil {
		return err
	}

	if _, ok := clipMethods[c.ClipMethod]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownClipMethod, c.ClipMethod)
	}

	if len(c.Passes) > 0 || c.Clip.Enabled() || c.Existing != ExistingSkip {
		return nil
	}

	if c.postProcessing() {
		return ErrSkipConflict
	}
	return ErrNoCaptionAction
}

// ExistingPath returns the caption file that sits beside an image.
func (c Config) ExistingPath(img string) string {
	return filepath.Join(filepath.Dir(img), stem(img)+"."+c.Extension)
}

// CaptionPath returns where the caption for an image is written.
func (c Config) CaptionPath(img string) string {
	if c.Output == "" {
		return c.ExistingPath(img)
	}
	return filepath.Join(c.Output, stem(img)+"."+c.Extension)
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SplitList splits a comma-separated option into trimmed, non-empty values.
func SplitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ParseFailPhrases splits a comma-separated fail phrase list. Phrases are
// literal, so surrounding whitespace is kept; empty phrases are dropped.
func ParseFailPhrases(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
