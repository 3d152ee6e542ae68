package sink

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/meilisearch/meilisearch-go"
)

const meiliSearchPageSize = 1000

// MeilisearchConfig captures connection settings for the note index.
type MeilisearchConfig struct {
	Host   string `yaml:"host"`
	APIKey string `yaml:"api_key"`
	Index  string `yaml:"index"`
}

type meilisearchTarget struct {
	client *meilisearch.Client
	index  *meilisearch.Index
	chunks ChunkOptions
	logger *slog.Logger
}

// NewMeilisearch connects to the configured index, creating it when
// missing. It returns a nil Target when no index is configured.
func NewMeilisearch(ctx context.Context, cfg MeilisearchConfig, chunks ChunkOptions, logger *slog.Logger) (Target, error) {
	host := strings.TrimSpace(cfg.Host)
	indexName := strings.TrimSpace(cfg.Index)
	if indexName == "" {
		return nil, nil
	}
	if host == "" {
		host = "http://localhost:7700"
	}
	if chunks.ChunkSize <= 0 {
		chunks = DefaultChunkOptions
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:   host,
		APIKey: strings.TrimSpace(cfg.APIKey),
	})
	index := client.Index(indexName)

	t := &meilisearchTarget{client: client, index: index, chunks: chunks, logger: logger}
	if err := t.ensureIndex(ctx, indexName); err != nil {
		return nil, fmt.Errorf("prepare meilisearch index %s: %w", indexName, err)
	}
	return t, nil
}

func (t *meilisearchTarget) ensureIndex(ctx context.Context, indexName string) error {
	_, err := t.client.GetIndex(indexName)
	if err != nil {
		var meiliErr *meilisearch.Error
		if errors.As(err, &meiliErr) && meiliErr.MeilisearchApiError.Code == "index_not_found" {
			task, createErr := t.client.CreateIndex(&meilisearch.IndexConfig{Uid: indexName, PrimaryKey: "id"})
			if createErr != nil {
				return createErr
			}
			if err := t.waitForTask(ctx, task); err != nil {
				return err
			}
		} else {
			return err
		}
	}

	searchable := []string{"content", "path"}
	current, err := t.index.GetSearchableAttributes()
	if err != nil {
		return err
	}
	if !stringSlicesEqual(derefSlice(current), searchable) {
		task, err := t.index.UpdateSearchableAttributes(&searchable)
		if err != nil {
			return err
		}
		if err := t.waitForTask(ctx, task); err != nil {
			return err
		}
	}

	filterable := []string{"folders", "path"}
	current, err = t.index.GetFilterableAttributes()
	if err != nil {
		return err
	}
	if !stringSlicesEqual(derefSlice(current), filterable) {
		task, err := t.index.UpdateFilterableAttributes(&filterable)
		if err != nil {
			return err
		}
		if err := t.waitForTask(ctx, task); err != nil {
			return err
		}
	}

	return nil
}

func (t *meilisearchTarget) waitForTask(ctx context.Context, task *meilisearch.TaskInfo) error {
	if task == nil || task.TaskUID == 0 {
		return nil
	}
	_, err := t.client.WaitForTask(task.TaskUID, meilisearch.WaitParams{Context: ctx})
	return err
}

// ApplyChanges removes documents of trashed and moved notes first, then
// replaces the documents of every written note.
func (t *meilisearchTarget) ApplyChanges(ctx context.Context, changes ChangeSet) error {
	if changes.IsEmpty() {
		return nil
	}

	for _, folder := range changes.RemovedFolders {
		if err := t.deleteMatching(ctx, "folders = "+strconv.Quote(folder)); err != nil {
			return fmt.Errorf("remove folder %s from index: %w", folder, err)
		}
	}
	for _, path := range changes.Removed {
		if err := t.deleteMatching(ctx, "path = "+strconv.Quote(path)); err != nil {
			return fmt.Errorf("remove %s from index: %w", path, err)
		}
	}

	var docs []meiliNoteDocument
	for _, note := range changes.Written {
		if err := t.deleteMatching(ctx, "path = "+strconv.Quote(note.Path)); err != nil {
			return fmt.Errorf("replace %s in index: %w", note.Path, err)
		}
		chunks, err := ChunkNote(note, t.chunks)
		if err != nil {
			return err
		}
		docs = append(docs, makeMeiliDocuments(chunks)...)
	}
	if len(docs) == 0 {
		return nil
	}

	task, err := t.index.AddDocuments(docs, "id")
	if err != nil {
		return err
	}
	if err := t.waitForTask(ctx, task); err != nil {
		return err
	}
	t.logger.Debug("Indexed notes", "notes", len(changes.Written), "documents", len(docs))
	return nil
}

func (t *meilisearchTarget) deleteMatching(ctx context.Context, filter string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := t.index.Search("", &meilisearch.SearchRequest{
			Filter:               filter,
			Limit:                meiliSearchPageSize,
			AttributesToRetrieve: []string{"id"},
		})
		if err != nil {
			return err
		}
		ids := hitIDs(res.Hits)
		if len(ids) == 0 {
			return nil
		}
		task, err := t.index.DeleteDocuments(ids)
		if err != nil {
			return err
		}
		if err := t.waitForTask(ctx, task); err != nil {
			return err
		}
		if len(ids) < meiliSearchPageSize {
			return nil
		}
	}
}

func hitIDs(hits []interface{}) []string {
	ids := make([]string, 0, len(hits))
	for _, hit := range hits {
		doc, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}
		if id, ok := doc["id"].(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func makeMeiliDocuments(chunks []Chunk) []meiliNoteDocument {
	docs := make([]meiliNoteDocument, 0, len(chunks))
	for _, chunk := range chunks {
		docs = append(docs, meiliNoteDocument{
			ID:          chunkDocumentID(chunk.Path, chunk.StartLine, chunk.EndLine),
			Path:        chunk.Path,
			Folders:     folderPrefixes(chunk.Path),
			StartLine:   chunk.StartLine,
			EndLine:     chunk.EndLine,
			Content:     chunk.Content,
			ContentHash: chunk.ContentHash,
		})
	}
	return docs
}

// chunkDocumentID hashes the location because document ids may only hold
// alphanumerics, dashes and underscores.
func chunkDocumentID(path string, start, end int) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s:%d-%d", path, start, end)))
	return hex.EncodeToString(sum[:])
}

// folderPrefixes lists every folder containing path, root-most first.
func folderPrefixes(path string) []string {
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		return nil
	}
	out := make([]string, 0, len(parts)-1)
	for i := 1; i < len(parts); i++ {
		out = append(out, strings.Join(parts[:i], "/"))
	}
	return out
}

func derefSlice(ptr *[]string) []string {
	if ptr == nil {
		return nil
	}
	return *ptr
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type meiliNoteDocument struct {
	ID          string   `json:"id"`
	Path        string   `json:"path"`
	Folders     []string `json:"folders"`
	StartLine   int      `json:"start_line"`
	EndLine     int      `json:"end_line"`
	Content     string   `json:"content"`
	ContentHash string   `json:"content_hash"`
}
