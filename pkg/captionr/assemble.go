package captionr

import (
	"strings"

	"k8s.io/klog/v2"
)

// Assembler turns a tag list into a final caption according to a Config.
type Assembler struct {
	c      Config
	ignore map[string]bool
}

// NewAssembler returns an Assembler for c.
func NewAssembler(c Config) *Assembler {
	return &Assembler{c: c, ignore: ParseIgnore(c.IgnoreTags)}
}

// Assemble builds the caption from new tags, the existing caption and folder tags.
func (a *Assembler) Assemble(tags []string, existing string, folders []string) string {
	c := a.c
	if c.FolderTag {
		tags = InsertFolderTags(tags, folders, c.FolderTagPosition)
	}

	tags = FilterTags(tags, a.ignore, c.UniquifyTags, c.FuzzRatio)
	klog.V(2).Infof("unique tags (before existing): %q", tags)

	tags = MergeExisting(tags, existing, c.Existing, c.UniquifyTags)
	klog.V(2).Infof("merged tags: %q", tags)

	return a.Finish(tags)
}

// Finish joins tags and applies find/replace, the length cap and the prepend/append text.
func (a *Assembler) Finish(tags []string) string {
	c := a.c
	text := strings.Join(tags, ", ")

	if c.findReplace() && strings.Contains(text, c.Find) {
		text = strings.ReplaceAll(text, c.Find, c.Replace)
	}

	words := strings.Split(text, " ")
	if c.CapLength != 0 && len(words) > c.CapLength {
		words = words[:c.CapLength]
		words[len(words)-1] = strings.TrimRight(words[len(words)-1], ",")
	}
	text = strings.Join(words, " ")

	if c.AppendText != "" {
		text += c.AppendText
	}

	if c.PrependText != "" {
		text = strings.TrimSpace(c.PrependText) + " " + text
	}
	return text
}
