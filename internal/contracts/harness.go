package contracts

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/Metaculus/metaculus-sub005/internal/fixtures"
	"github.com/Metaculus/metaculus-sub005/internal/keyfactor"
)

// Report captures validation results for a fixtures file.
type Report struct {
	Path        string
	Posts       int
	Suggestions int
	Errors      []error
	Warnings    []string
}

// ValidateFixtureFile reads and validates one fixtures file. Unlike
// fixtures.ParseDocument it keeps going after the first problem.
func ValidateFixtureFile(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures file: %w", err)
	}
	var doc fixtures.Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse fixtures file: %w", err)
	}
	report := &Report{Path: path, Posts: len(doc.Posts)}
	posts := map[int64]keyfactor.Post{}
	for i, post := range doc.Posts {
		for _, err := range ValidatePost(post) {
			report.Errors = append(report.Errors, fmt.Errorf("posts[%d]: %w", i, err))
		}
		report.Warnings = append(report.Warnings, Warnings(post)...)
		if _, dup := posts[post.ID]; dup && post.ID > 0 {
			report.Errors = append(report.Errors, fmt.Errorf("posts[%d]: id %d is declared twice", i, post.ID))
		}
		posts[post.ID] = post
	}
	for i, set := range doc.Suggestions {
		post, ok := posts[set.Post]
		if !ok {
			report.Errors = append(report.Errors, fmt.Errorf("suggestions[%d]: post %d is not declared in this file", i, set.Post))
			continue
		}
		var drafts []keyfactor.Draft
		for j, raw := range set.KeyFactors {
			d, err := fixtures.DecodeDraft(raw)
			if err != nil {
				report.Errors = append(report.Errors, fmt.Errorf("suggestions[%d].key_factors[%d]: %w", i, j, err))
				continue
			}
			drafts = append(drafts, d)
		}
		report.Suggestions += len(drafts)
		for _, err := range ValidateSuggestions(post, drafts) {
			report.Errors = append(report.Errors, fmt.Errorf("suggestions[%d].%w", i, err))
		}
	}
	return report, nil
}

// ValidatePath validates a single file or every YAML file in a directory.
func ValidatePath(path string) ([]*Report, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		report, err := ValidateFixtureFile(path)
		if err != nil {
			return nil, err
		}
		return []*Report{report}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && fixtures.IsYAMLFile(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	reports := make([]*Report, 0, len(names))
	for _, name := range names {
		report, err := ValidateFixtureFile(filepath.Join(path, name))
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// IsValid reports whether the validation passed.
func (r *Report) IsValid() bool {
	return r != nil && len(r.Errors) == 0
}
