// Package ops implements the catalogue's operation handlers.
//
// Every handler reads and writes fixed paths under the sandbox root and
// never takes a path from the instruction. Handlers that write the same
// output file are last-writer-wins.
package ops

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/taskgate/internal/catalogue"
)

// ErrNoModel is returned by handlers that need a model when none is configured.
var ErrNoModel = errors.New("no model configured; set GEMINI_API_KEY")

// Vision answers a prompt about a binary attachment (image or audio).
type Vision interface {
	Extract(ctx context.Context, prompt string, data []byte, mimeType string) (string, error)
}

// Embedder turns texts into vectors, one per text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config holds the collaborators and fixed inputs of the handlers.
type Config struct {
	Root           string
	UserEmail      string
	DatagenScript  string
	APIURL         string
	RepoURL        string
	ScrapeURL      string
	SQLQuery       string
	FilterCategory string

	HTTPClient *http.Client
	Runner     Runner
	Vision     Vision
	Embedder   Embedder
	Logger     *zap.Logger
}

// Handlers binds every operation to one sandbox root.
type Handlers struct {
	root           string
	userEmail      string
	datagenScript  string
	apiURL         string
	repoURL        string
	scrapeURL      string
	sqlQuery       string
	filterCategory string

	http     *http.Client
	runner   Runner
	vision   Vision
	embedder Embedder
	log      *zap.Logger
}

// New creates Handlers. Nil collaborators get working defaults except
// Vision and Embedder, which stay unset.
func New(cfg Config) *Handlers {
	h := &Handlers{
		root:           cfg.Root,
		userEmail:      cfg.UserEmail,
		datagenScript:  cfg.DatagenScript,
		apiURL:         cfg.APIURL,
		repoURL:        cfg.RepoURL,
		scrapeURL:      cfg.ScrapeURL,
		sqlQuery:       cfg.SQLQuery,
		filterCategory: cfg.FilterCategory,
		http:           cfg.HTTPClient,
		runner:         cfg.Runner,
		vision:         cfg.Vision,
		embedder:       cfg.Embedder,
		log:            cfg.Logger,
	}
	if h.http == nil {
		h.http = &http.Client{Timeout: 30 * time.Second}
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	if h.runner == nil {
		h.runner = &ExecRunner{Logger: h.log}
	}
	if h.datagenScript == "" {
		h.datagenScript = "datagen.py"
	}
	return h
}

// Rules returns the catalogue rules in priority order. The extra weekday
// counters come last so they never shadow an earlier operation.
func (h *Handlers) Rules() []catalogue.Rule {
	rules := []catalogue.Rule{
		{Phrase: "run datagen", ID: "datagen", Handler: h.Datagen},
		{Phrase: "format markdown", ID: "format_markdown", Handler: h.FormatMarkdown},
		{Phrase: "count wednesdays", ID: "count_wednesdays", Handler: h.countWeekday(time.Wednesday)},
		{Phrase: "sort contacts", ID: "sort_contacts", Handler: h.SortContacts},
		{Phrase: "recent logs", ID: "recent_logs", Handler: h.RecentLogs},
		{Phrase: "index markdown", ID: "index_markdown", Handler: h.IndexMarkdown},
		{Phrase: "extract email sender", ID: "email_sender", Handler: h.EmailSender},
		{Phrase: "extract credit card", ID: "credit_card", Handler: h.CreditCard},
		{Phrase: "find similar comments", ID: "similar_comments", Handler: h.SimilarComments},
		{Phrase: "total sales gold", ID: "gold_ticket_sales", Handler: h.GoldTicketSales},
		{Phrase: "fetch data from api", ID: "fetch_api", Handler: h.FetchAPI},
		{Phrase: "clone git repo", ID: "clone_repo", Handler: h.CloneRepo},
		{Phrase: "run sql query", ID: "sql_query", Handler: h.SQLQuery},
		{Phrase: "scrape website", ID: "scrape_website", Handler: h.ScrapeWebsite},
		{Phrase: "resize image", ID: "resize_image", Handler: h.ResizeImage},
		{Phrase: "transcribe audio", ID: "transcribe_audio", Handler: h.TranscribeAudio},
		{Phrase: "convert markdown", ID: "convert_markdown", Handler: h.ConvertMarkdown},
		{Phrase: "filter csv", ID: "filter_csv", Handler: h.FilterCSV},
	}
	for _, day := range []time.Weekday{
		time.Monday, time.Tuesday, time.Thursday, time.Friday, time.Saturday, time.Sunday,
	} {
		rules = append(rules, catalogue.Rule{
			Phrase:  "count " + weekdayPlural(day),
			ID:      "count_" + weekdayPlural(day),
			Handler: h.countWeekday(day),
		})
	}
	return rules
}

// path joins a fixed relative name under the sandbox root.
func (h *Handlers) path(elem ...string) string {
	return filepath.Join(append([]string{h.root}, elem...)...)
}

// readFile reads a sandbox file, naming it relative to the root in errors.
func (h *Handlers) readFile(name string) ([]byte, error) {
	data, err := os.ReadFile(h.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: no such file", name)
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// writeFile replaces name under the root atomically.
func (h *Handlers) writeFile(name string, data []byte) error {
	dst := h.path(name)
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
