package ops

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// recentLogCount is how many of the newest log files contribute a line.
const recentLogCount = 10

// RecentLogs writes the first line of the ten most recently modified files
// in logs/ to logs-recent.txt, newest first.
func (h *Handlers) RecentLogs(ctx context.Context) (string, error) {
	dir := h.path("logs")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("logs/: no such directory")
		}
		return "", fmt.Errorf("list logs/: %w", err)
	}

	type logFile struct {
		name  string
		mtime time.Time
	}
	files := make([]logFile, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return "", fmt.Errorf("stat logs/%s: %w", e.Name(), err)
		}
		files = append(files, logFile{name: e.Name(), mtime: info.ModTime()})
	}
	// ReadDir returns names sorted, so equal mtimes keep name order.
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].mtime.After(files[j].mtime)
	})
	if len(files) > recentLogCount {
		files = files[:recentLogCount]
	}

	var out bytes.Buffer
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		line, err := firstLine(filepath.Join(dir, f.name))
		if err != nil {
			return "", fmt.Errorf("read logs/%s: %w", f.name, err)
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}

	if err := h.writeFile("logs-recent.txt", out.Bytes()); err != nil {
		return "", err
	}
	return "Extracted recent log lines.", nil
}

func firstLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
