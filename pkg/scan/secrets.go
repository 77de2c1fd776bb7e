package scan

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultInclude matches every file when no include patterns are configured.
const DefaultInclude = "**/*"

const maxScanFileSize = 2 << 20

// SecretFinding locates a pattern match. The matched text is never recorded.
type SecretFinding struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Pattern string `json:"pattern"`
}

// SecretScanner reports likely credentials committed to a project tree.
type SecretScanner interface {
	Scan(ctx context.Context, projectDir string) ([]SecretFinding, error)
}

// PatternScanner matches regular expressions line by line over the files
// selected by Include minus Exclude.
type PatternScanner struct {
	patterns []*regexp.Regexp
	include  []string
	exclude  []string
}

// NewPatternScanner compiles patterns.
func NewPatternScanner(patterns, include, exclude []string) (*PatternScanner, error) {
	s := &PatternScanner{include: include, exclude: exclude}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compiling secret pattern %q: %w", p, err)
		}
		s.patterns = append(s.patterns, re)
	}
	return s, nil
}

func (s *PatternScanner) Scan(ctx context.Context, projectDir string) ([]SecretFinding, error) {
	fsys := os.DirFS(projectDir)
	files, err := filterFiles(fsys, s.include, s.exclude)
	if err != nil {
		return nil, fmt.Errorf("filtering files: %w", err)
	}

	slog.Debug("secret scan", "dir", projectDir, "files", len(files))

	findings := []SecretFinding{}
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found, err := s.scanFile(fsys, name)
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("file vanished during scan", "path", name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", name, err)
		}
		findings = append(findings, found...)
	}
	return findings, nil
}

func (s *PatternScanner) scanFile(fsys fs.FS, name string) ([]SecretFinding, error) {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, err
	}
	if bytes.IndexByte(content, 0) >= 0 {
		return nil, nil
	}

	var findings []SecretFinding
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), maxScanFileSize)
	line := 0
	for sc.Scan() {
		line++
		for _, re := range s.patterns {
			if re.Match(sc.Bytes()) {
				findings = append(findings, SecretFinding{Path: name, Line: line, Pattern: re.String()})
				break
			}
		}
	}
	return findings, sc.Err()
}

func globFS(fsys fs.FS, patterns []string) ([]string, error) {
	var result []string
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		result = append(result, matches...)
	}
	slices.Sort(result)
	result = slices.Compact(result)
	return result, nil
}

func filterFiles(fsys fs.FS, include, exclude []string) ([]string, error) {
	if len(include) == 0 {
		include = []string{DefaultInclude}
	}

	included, err := globFS(fsys, include)
	if err != nil {
		return nil, fmt.Errorf("include filter: %w", err)
	}

	excluded, err := globFS(fsys, exclude)
	if err != nil {
		return nil, fmt.Errorf("exclude filter: %w", err)
	}

	var result []string
	for _, f := range included {
		if slices.Contains(excluded, f) {
			continue
		}
		info, err := fs.Stat(fsys, f)
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("skipping unreadable path", "path", f, "error", err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", f, err)
		}
		if info.IsDir() || info.Size() > maxScanFileSize {
			continue
		}
		result = append(result, f)
	}
	return result, nil
}
