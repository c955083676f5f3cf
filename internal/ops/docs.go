package ops

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// IndexMarkdown maps every .md file under docs/ (recursively, by slash
// path relative to docs/) to its first heading and writes docs/index.json.
// Files without a heading are left out.
func (h *Handlers) IndexMarkdown(ctx context.Context) (string, error) {
	dir := h.path("docs")
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("docs/: no such directory")
	}

	index := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}

		title, ok, err := firstHeading(path)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		index[filepath.ToSlash(rel)] = title
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("index docs/: %w", err)
	}

	out, err := json.MarshalIndent(index, "", "    ")
	if err != nil {
		return "", fmt.Errorf("encode index: %w", err)
	}
	if err := h.writeFile(filepath.Join("docs", "index.json"), out); err != nil {
		return "", err
	}
	return "Created markdown index.", nil
}

// firstHeading returns the text of the first line starting with '#',
// stripped of the leading markers and surrounding whitespace.
func firstHeading(path string) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.Trim(line, "# ")), true, nil
		}
	}
	return "", false, scanner.Err()
}
