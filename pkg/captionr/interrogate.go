package captionr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"k8s.io/klog/v2"
)

// ErrUnknownClipMethod is returned for a CLIP method outside the supported set.
var ErrUnknownClipMethod = errors.New("unknown clip method")

// Interrogator adds descriptive terms to a caption. Each method returns a
// comma-separated tag string that starts with the caption.
type Interrogator interface {
	Interrogate(ctx context.Context, caption string, img *Image, maxFlavors int) (string, error)
	InterrogateFast(ctx context.Context, caption string, img *Image, maxFlavors int) (string, error)
	InterrogateClassic(ctx context.Context, caption string, img *Image, maxFlavors int) (string, error)
}

// ClipMethod names an Interrogator method.
type ClipMethod string

const (
	ClipBest    ClipMethod = "interrogate"
	ClipFast    ClipMethod = "interrogate_fast"
	ClipClassic ClipMethod = "interrogate_classic"
)

type interrogateFunc func(ctx context.Context, caption string, img *Image, maxFlavors int) (string, error)

var clipMethods = map[ClipMethod]func(Interrogator) interrogateFunc{
	ClipBest:    func(i Interrogator) interrogateFunc { return i.Interrogate },
	ClipFast:    func(i Interrogator) interrogateFunc { return i.InterrogateFast },
	ClipClassic: func(i Interrogator) interrogateFunc { return i.InterrogateClassic },
}

func (m ClipMethod) resolve(i Interrogator) (interrogateFunc, error) {
	f, ok := clipMethods[m]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClipMethod, m)
	}
	return f(i), nil
}

// category is a kind of descriptive term the interrogator can ask for.
type category struct {
	name     string
	question string
	// format renders a single answer into the classic caption layout.
	format func(string) string
}

var (
	mediumCategory = category{
		name:     "medium",
		question: "What artistic medium is this image (for example: a photograph, an oil painting, a 3D render)? Answer with the medium only.",
		format:   func(s string) string { return s },
	}
	artistCategory = category{
		name:     "artist",
		question: "Which artist's style does this image most resemble? Answer with the artist name only.",
		format:   func(s string) string { return "by " + s },
	}
	trendingCategory = category{
		name:     "trending",
		question: "On which art site would this image be trending (for example: artstation, flickr, pixiv)? Answer with the site name only.",
		format:   func(s string) string { return "trending on " + s },
	}
	movementCategory = category{
		name:     "movement",
		question: "Which art movement best describes this image? Answer with the movement only.",
		format:   func(s string) string { return s },
	}
)

// VisionInterrogator asks a vision model for descriptive terms.
type VisionInterrogator struct {
	p     Prompter
	modes ClipModes
}

// NewVisionInterrogator returns an Interrogator for the enabled modes.
func NewVisionInterrogator(p Prompter, modes ClipModes) *VisionInterrogator {
	return &VisionInterrogator{p: p, modes: modes}
}

// NewInterrogator builds the interrogator described by spec.
func NewInterrogator(ctx context.Context, spec BackendSpec, modes ClipModes) (*VisionInterrogator, error) {
	p, err := NewPrompter(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("clip: %w", err)
	}
	return NewVisionInterrogator(p, modes), nil
}

func (v *VisionInterrogator) categories() []category {
	var cs []category
	if v.modes.Medium {
		cs = append(cs, mediumCategory)
	}
	if v.modes.Artist {
		cs = append(cs, artistCategory)
	}
	if v.modes.Trending {
		cs = append(cs, trendingCategory)
	}
	if v.modes.Movement {
		cs = append(cs, movementCategory)
	}
	return cs
}

// InterrogateFast asks for all enabled terms in a single request.
func (v *VisionInterrogator) InterrogateFast(ctx context.Context, caption string, img *Image, maxFlavors int) (string, error) {
	kinds := lo.Map(v.categories(), func(c category, _ int) string { return c.name })
	if v.modes.Flavor {
		kinds = append(kinds, "visual style", "lighting", "composition")
	}

	prompt := fmt.Sprintf("This image is captioned %q. List up to %d short descriptive tags about its %s. "+
		"Answer with a comma-separated list of tags only.", caption, maxFlavors, strings.Join(kinds, ", "))
	out, err := v.p.Prompt(ctx, prompt, img)
	if err != nil {
		return "", err
	}
	return joinTerms(caption, cleanTerms(out, caption, maxFlavors)), nil
}

// InterrogateClassic asks about each category separately and lays the answers
// out as "caption, medium by artist, trending on site, movement, flavors".
func (v *VisionInterrogator) InterrogateClassic(ctx context.Context, caption string, img *Image, maxFlavors int) (string, error) {
	terms, err := v.classic(ctx, img)
	if err != nil {
		return "", err
	}

	if v.modes.Flavor {
		fs, err := v.flavors(ctx, caption, img, maxFlavors)
		if err != nil {
			return "", err
		}
		terms = append(terms, fs...)
	}
	return joinTerms(caption, terms), nil
}

// Interrogate combines the classic category answers with a refined set of flavors.
func (v *VisionInterrogator) Interrogate(ctx context.Context, caption string, img *Image, maxFlavors int) (string, error) {
	terms, err := v.classic(ctx, img)
	if err != nil {
		return "", err
	}

	if v.modes.Flavor {
		fs, err := v.flavors(ctx, caption, img, maxFlavors*2)
		if err != nil {
			return "", err
		}
		prompt := fmt.Sprintf("From these candidate tags: %s. Choose the %d that best describe this image. "+
			"Answer with a comma-separated list of tags only.", strings.Join(fs, ", "), maxFlavors)
		out, err := v.p.Prompt(ctx, prompt, img)
		if err != nil {
			return "", err
		}
		terms = append(terms, cleanTerms(out, caption, maxFlavors)...)
	}
	return joinTerms(caption, terms), nil
}

func (v *VisionInterrogator) classic(ctx context.Context, img *Image) ([]string, error) {
	answers := map[string]string{}
	for _, c := range v.categories() {
		out, err := v.p.Prompt(ctx, c.question, img)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.name, err)
		}
		ts := cleanTerms(out, "", 1)
		if len(ts) == 0 {
			continue
		}
		answers[c.name] = c.format(ts[0])
		klog.V(2).Infof("clip %s: %s", c.name, answers[c.name])
	}

	var terms []string
	lead := answers["medium"]
	if a, ok := answers["artist"]; ok {
		lead = strings.TrimSpace(lead + " " + a)
	}
	if lead != "" {
		terms = append(terms, lead)
	}
	for _, k := range []string{"trending", "movement"} {
		if a, ok := answers[k]; ok {
			terms = append(terms, a)
		}
	}
	return terms, nil
}

func (v *VisionInterrogator) flavors(ctx context.Context, caption string, img *Image, n int) ([]string, error) {
	prompt := fmt.Sprintf("This image is captioned %q. List up to %d short tags describing its visual style, "+
		"lighting, colors and composition. Answer with a comma-separated list of tags only.", caption, n)
	out, err := v.p.Prompt(ctx, prompt, img)
	if err != nil {
		return nil, fmt.Errorf("flavors: %w", err)
	}
	return cleanTerms(out, caption, n), nil
}

// cleanTerms normalizes a model's list answer: one term per comma or line,
// without bullets, quotes, repeats or the caption itself, at most n terms.
func cleanTerms(out string, caption string, n int) []string {
	out = strings.ReplaceAll(out, "\n", ",")
	terms := lo.Map(strings.Split(out, ","), func(s string, _ int) string {
		return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "-*•.\"'"))
	})
	terms = lo.Filter(lo.Uniq(terms), func(s string, _ int) bool {
		return s != "" && s != caption
	})
	if n > 0 && len(terms) > n {
		terms = terms[:n]
	}
	return terms
}

func joinTerms(caption string, terms []string) string {
	if caption == "" {
		return strings.Join(terms, ", ")
	}
	return strings.Join(append([]string{caption}, terms...), ", ")
}
