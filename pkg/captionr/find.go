package captionr

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/samber/lo"
	"k8s.io/klog/v2"
)

// Find returns the images under the configured folders that need captioning.
// With the skip policy, images that already have a caption file are left out.
// An image reachable from more than one folder is returned once.
func Find(c Config) ([]string, error) {
	found := []string{}
	for _, root := range c.Folders {
		ps, err := find(c, root)
		if err != nil {
			return nil, fmt.Errorf("find %s: %w", root, err)
		}
		found = append(found, ps...)
	}
	return lo.Uniq(found), nil
}

func find(c Config, root string) ([]string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	found := []string{}
	err = godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if path != root && strings.HasPrefix(filepath.Base(path), ".") {
				return godirwalk.SkipThis
			}

			if de.IsDir() || !IsImage(path) {
				return nil
			}

			if !wanted(c, path) {
				return nil
			}

			klog.V(1).Infof("found %s", path)
			found = append(found, path)
			return nil
		},
	})
	return found, err
}

// Dirs returns root and every non-hidden directory beneath it.
func Dirs(root string) ([]string, error) {
	dirs := []string{}
	err := godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if path != root && strings.HasPrefix(filepath.Base(path), ".") {
				return godirwalk.SkipThis
			}
			if de.IsDir() {
				dirs = append(dirs, path)
			}
			return nil
		},
	})
	return dirs, err
}

// wanted applies the skip policy to a single image.
func wanted(c Config, path string) bool {
	if c.Existing != ExistingSkip {
		return true
	}

	cf := c.CaptionPath(path)
	if _, err := os.Stat(cf); err != nil {
		return true
	}

	if !c.Quiet {
		klog.Infof("Caption file %s exists. Skipping.", cf)
	}
	return false
}
