package captionr

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"
)

//go:embed assets/report.tmpl
var reportTmpl string

// WriteReport renders an HTML page of image/caption pairs to path.
func WriteReport(path string, results []Result) error {
	bs, err := renderReport(filepath.Dir(path), results)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	klog.Infof("Writing report with %d images to %s", len(results), path)
	return os.WriteFile(path, bs, 0o644)
}

func renderReport(outDir string, results []Result) ([]byte, error) {
	tmpl, err := template.New("report").Funcs(tmplFunctions()).Parse(reportTmpl)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}

	data := struct {
		Title   string
		OutDir  string
		OK      int
		Failed  int
		Results []Result
	}{
		Title:   "captionr preview",
		OutDir:  outDir,
		OK:      len(results) - failed,
		Failed:  failed,
		Results: results,
	}

	var tpl bytes.Buffer
	if err = tmpl.Execute(&tpl, data); err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}
	return tpl.Bytes(), nil
}

// tmplFunctions are functions available to our templates.
func tmplFunctions() template.FuncMap {
	return template.FuncMap{
		"RelPath": func(b string, s string) string {
			abs, err := filepath.Abs(b)
			if err != nil {
				return fmt.Sprintf("ERROR[%v]", err)
			}
			r, err := filepath.Rel(abs, s)
			if err != nil {
				return fmt.Sprintf("ERROR[%v]", err)
			}
			return filepath.ToSlash(r)
		},
		"BasePath": filepath.Base,
	}
}
