// captionr writes caption files for image collections using vision-language models.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"slices"

	"k8s.io/klog/v2"

	captionr "github.com/tstromberg/captionr/pkg/captionr"
)

var (
	output     = flag.String("output", "", "Output to a folder rather than side by side with image files")
	existing   = flag.String("existing", "skip", "Action to take for existing caption files: skip, ignore, copy, prepend, append, flavor")
	capLength  = flag.Int("cap_length", 0, "Maximum length of caption in words, 0 for no limit")
	modelOrder = flag.String("model_order", "coca,git,blip", "Perform captioning/fallback using this order")
	passes     = flag.String("passes", "", "Comma-separated backend passes to enable, in addition to the --*_pass flags")
	backends   = flag.String("backends", "", "YAML file defining backends and the CLIP interrogator")

	gitPass      = flag.Bool("git_pass", false, "Perform a GIT model pass")
	cocaPass     = flag.Bool("coca_pass", false, "Perform a Coca model pass")
	blipPass     = flag.Bool("blip_pass", false, "Perform a BLIP model pass")
	flamingoPass = flag.Bool("flamingo_pass", false, "Perform a Flamingo model pass")

	clipFlavor     = flag.Bool("clip_flavor", false, "Add CLIP flavors")
	clipArtist     = flag.Bool("clip_artist", false, "Add CLIP artists")
	clipMedium     = flag.Bool("clip_medium", false, "Add CLIP mediums")
	clipMovement   = flag.Bool("clip_movement", false, "Add CLIP movements")
	clipTrending   = flag.Bool("clip_trending", false, "Add CLIP trendings")
	clipMaxFlavors = flag.Int("clip_max_flavors", 8, "Max CLIP flavors")
	clipMethod     = flag.String("clip_method", "interrogate_fast", "CLIP method to use: interrogate, interrogate_fast, interrogate_classic")

	failPhrases = flag.String("fail_phrases", "a sign that says,writing that says,that says,with the word", "Phrases that will fail a caption pass and move to the fallback model")
	ignoreTags  = flag.String("ignore_tags", "", "Comma separated list of tags to ignore")
	find        = flag.String("find", "", "Perform find and replace with --replace")
	replace     = flag.String("replace", "", "Perform find and replace with --find")

	folderTag         = flag.Bool("folder_tag", false, "Tag the image with folder name")
	folderTagLevels   = flag.Int("folder_tag_levels", 1, "Number of folder levels to tag")
	folderTagStop     = flag.String("folder_tag_stop", "", "Do not tag folders any deeper than this path")
	folderTagPosition = flag.Int("folder_tag_position", 1, "What position to insert folder tags into the tag list")

	uniquifyTags = flag.Bool("uniquify_tags", false, "Ensure tags are unique")
	fuzzRatio    = flag.Float64("fuzz_ratio", 60.0, "Tags more than this similar (0-100) to an earlier tag are eliminated when uniquifying; a tag exactly this similar is kept")
	prependText  = flag.String("prepend_text", "", "Prepend text to final caption")
	appendText   = flag.String("append_text", "", "Append text to final caption")

	preview     = flag.Bool("preview", false, "Do not write caption files, just log a preview")
	useFilename = flag.Bool("use_filename", false, "Read the existing caption from the filename, stripping all special characters/numbers")
	useMetadata = flag.Bool("use_metadata", false, "Read the existing caption from embedded Keywords or ImageDescription (requires exiftool)")
	copyImages  = flag.Bool("copy_images", false, "Copy images next to their captions in --output")
	extension   = flag.String("extension", "txt", "Caption file extension: txt or caption")
	maxDim      = flag.Int("max_dim", 768, "Scale images down to this many pixels on the longest side before captioning, 0 to disable")
	numWorkers  = flag.Int("num_workers", 8, "Number of images to caption concurrently")
	report      = flag.String("report", "", "Write an HTML report of captioned images to this path")
	watchFlag   = flag.Bool("watch", false, "Keep watching the folders and caption new images")
	quiet       = flag.Bool("quiet", false, "Only log errors")
	debug       = flag.Bool("debug", false, "Log debug output")

	prompt            = flag.String("prompt", "", "Prompt to send to every captioning backend")
	temperature       = flag.Float64("temperature", 1.0, "Sampling temperature")
	topK              = flag.Int("top_k", 0, "top_k sampling")
	topP              = flag.Float64("top_p", 0.9, "top_p sampling")
	maxNewTokens      = flag.Int("max_new_tokens", 50, "Maximum number of tokens to generate")
	repetitionPenalty = flag.Float64("repetition_penalty", 1.0, "Repetition penalty")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	setLogging(*debug, *quiet)

	c, err := config()
	if err != nil {
		klog.Exitf("invalid flags: %v", err)
	}
	if err := c.Validate(); err != nil {
		klog.Exitf("%v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	bf, err := captionr.LoadBackends(*backends)
	if err != nil {
		klog.Exitf("backends: %v", err)
	}
	for name, spec := range bf.Backends {
		bf.Backends[name] = overrides(spec)
	}

	d := captionr.Deps{}
	d.Backends, err = captionr.NewBackends(ctx, c, bf)
	if err != nil {
		klog.Exitf("backends: %v", err)
	}

	if c.Clip.Enabled() {
		klog.Infof("Loading CLIP interrogator...")
		d.Clip, err = captionr.NewInterrogator(ctx, *bf.Clip, c.Clip)
		if err != nil {
			klog.Exitf("clip: %v", err)
		}
	}

	if c.UseMetadata {
		er, err := captionr.NewExifReader()
		if err != nil {
			klog.Exitf("metadata: %v", err)
		}
		defer func() {
			if err := er.Close(); err != nil {
				klog.Errorf("Failed to close exiftool: %v", err)
			}
		}()
		d.Metadata = er
	}

	paths, err := captionr.Find(c)
	if err != nil {
		klog.Exitf("find: %v", err)
	}
	klog.Infof("Found %d images to caption in %v", len(paths), c.Folders)

	cr := captionr.New(c, d)
	results := cr.Run(ctx, paths)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	klog.Infof("captionr completed: %d images, %d failed", len(results), failed)

	if *report != "" {
		if err := captionr.WriteReport(*report, results); err != nil {
			klog.Errorf("report: %v", err)
		}
	}

	if *watchFlag {
		if err := watch(ctx, c, cr); err != nil {
			klog.Exitf("watch: %v", err)
		}
	}
}

// setLogging applies --debug and --quiet to klog. In quiet mode only errors reach stderr.
func setLogging(debug, quiet bool) {
	if debug {
		_ = flag.Set("v", "2")
	}
	if !quiet {
		return
	}

	// stderrthreshold is ignored while logtostderr is set
	fs := flag.NewFlagSet("quiet", flag.ContinueOnError)
	klog.InitFlags(fs)
	_ = fs.Set("stderrthreshold", "ERROR")
	klog.LogToStderr(false)
	klog.SetOutput(io.Discard)
}

// config builds the run configuration from flags.
func config() (captionr.Config, error) {
	c := captionr.DefaultConfig()
	var err error

	c.Folders = flag.Args()
	c.Output = *output
	c.Existing, err = captionr.ParseExisting(*existing)
	if err != nil {
		return c, err
	}

	c.CapLength = *capLength
	c.ModelOrder = captionr.SplitList(*modelOrder)
	c.Passes = captionr.SplitList(*passes)
	for _, p := range []struct {
		name string
		on   bool
	}{{"coca", *cocaPass}, {"git", *gitPass}, {"blip", *blipPass}, {"flamingo", *flamingoPass}} {
		if p.on && !c.Enabled(p.name) {
			c.Passes = append(c.Passes, p.name)
		}
	}
	// passes missing from --model_order are tried last
	for _, p := range c.Passes {
		if !slices.Contains(c.ModelOrder, p) {
			c.ModelOrder = append(c.ModelOrder, p)
		}
	}

	c.Clip = captionr.ClipModes{
		Flavor:   *clipFlavor,
		Artist:   *clipArtist,
		Medium:   *clipMedium,
		Movement: *clipMovement,
		Trending: *clipTrending,
	}
	c.ClipMethod = captionr.ClipMethod(*clipMethod)
	c.ClipMaxFlavors = *clipMaxFlavors

	c.FailPhrases = captionr.ParseFailPhrases(*failPhrases)
	c.IgnoreTags = *ignoreTags
	c.Find = *find
	c.Replace = *replace

	c.FolderTag = *folderTag
	c.FolderTagLevels = *folderTagLevels
	c.FolderTagStop = *folderTagStop
	c.FolderTagPosition = *folderTagPosition

	c.UniquifyTags = *uniquifyTags
	c.FuzzRatio = *fuzzRatio
	c.PrependText = *prependText
	c.AppendText = *appendText

	c.Preview = *preview
	c.UseFilename = *useFilename
	c.UseMetadata = *useMetadata
	c.CopyImages = *copyImages
	c.Extension = *extension
	c.MaxDim = *maxDim
	c.Workers = *numWorkers
	c.Quiet = *quiet
	return c, nil
}

// overrides applies generation flags that were set explicitly on the command line.
func overrides(spec captionr.BackendSpec) captionr.BackendSpec {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "prompt":
			spec.Prompt = *prompt
		case "temperature":
			spec.Temperature = temperature
		case "top_k":
			spec.TopK = *topK
		case "top_p":
			spec.TopP = topP
		case "max_new_tokens":
			spec.MaxTokens = *maxNewTokens
		case "repetition_penalty":
			spec.RepetitionPenalty = repetitionPenalty
		}
	})
	return spec
}
