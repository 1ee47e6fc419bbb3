package captionr

import (
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

// malformedTag marks escaped parenthetical tags produced by some taggers.
const malformedTag = `_\(`

var trailingPeriod = regexp.MustCompile(`^.+(\s+\.\s*)$`)

// TrimPeriod removes a detached trailing period ("a cat ." becomes "a cat").
func TrimPeriod(s string) string {
	m := trailingPeriod.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	return strings.TrimSpace(s[:len(s)-len(m[1])])
}

// SplitTags splits a caption on commas, trimming each tag. Empty tags are kept.
func SplitTags(s string) []string {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// ParentFolders returns up to levels ancestor directory names of path, nearest first.
// It stops early once the remaining parent is stop.
func ParentFolders(path string, levels int, stop string) []string {
	if stop != "" {
		stop = filepath.Clean(stop)
	}

	dir := filepath.Dir(path)
	var out []string
	for range levels {
		name := filepath.Base(dir)
		if name == string(filepath.Separator) || name == "." {
			name = ""
		}
		dir = filepath.Dir(dir)
		out = append(out, name)

		if stop != "" && dir == stop {
			break
		}
	}
	return out
}

// InsertFolderTags places folder tags at position. Each tag is inserted at the
// same index, so multiple levels end up in reverse order.
func InsertFolderTags(tags []string, folders []string, position int) []string {
	for _, f := range folders {
		f = strings.TrimSpace(f)
		if len(tags) < position {
			tags = append(tags, f)
			continue
		}
		tags = slices.Insert(tags, max(position, 0), f)
	}
	return tags
}

// ParseIgnore turns a comma-separated ignore list into a set.
func ParseIgnore(s string) map[string]bool {
	ignore := map[string]bool{}
	if s == "" {
		return ignore
	}
	for _, t := range strings.Split(s, ",") {
		ignore[strings.TrimSpace(t)] = true
	}
	return ignore
}

// FilterTags drops malformed and ignored tags. With uniquify, exact duplicates
// and tags scoring above threshold against an earlier kept tag are dropped too.
// The first occurrence always wins. Double quotes are removed from kept tags.
func FilterTags(tags []string, ignore map[string]bool, uniquify bool, threshold float64) []string {
	kept := []string{}
	for _, tag := range tags {
		t := strings.TrimSpace(tag)
		if strings.Contains(tag, malformedTag) || ignore[t] {
			continue
		}

		if uniquify && (slices.Contains(kept, t) || similar(kept, t, threshold)) {
			continue
		}

		kept = append(kept, strings.TrimSpace(strings.ReplaceAll(tag, `"`, "")))
	}
	return kept
}

func similar(kept []string, t string, threshold float64) bool {
	for _, k := range kept {
		if Ratio(k, t) > threshold {
			return true
		}
	}
	return false
}

// MergeExisting reconciles newly generated tags with an existing caption.
// The first empty tag left after merging is removed.
func MergeExisting(tags []string, existing string, policy Existing, uniquify bool) []string {
	old := SplitTags(existing)
	tags = slices.Clone(tags)

	switch policy {
	case ExistingPrepend:
		merged := slices.Clone(old)
		for _, t := range tags {
			t = strings.TrimSpace(t)
			if !uniquify || !slices.Contains(merged, t) {
				merged = append(merged, t)
			}
		}
		tags = merged
	case ExistingAppend:
		for _, t := range old {
			if !uniquify || !slices.Contains(tags, t) {
				tags = append(tags, t)
			}
		}
	case ExistingCopy:
		if existing != "" {
			tags = append(tags, old...)
		}
	}

	if i := slices.Index(tags, ""); i >= 0 {
		tags = slices.Delete(tags, i, i+1)
	}
	return tags
}
