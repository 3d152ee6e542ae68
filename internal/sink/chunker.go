package sink

import (
	"bufio"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// Chunk is a line range of a note.
type Chunk struct {
	Path        string
	StartLine   int
	EndLine     int
	Content     string
	ContentHash string
}

// ChunkOptions controls how notes are split.
type ChunkOptions struct {
	ChunkSize    int
	ChunkOverlap int
}

// DefaultChunkOptions are used when a target is configured without any.
var DefaultChunkOptions = ChunkOptions{ChunkSize: 40, ChunkOverlap: 5}

// ChunkNote splits a note into overlapping line ranges.
func ChunkNote(note Note, opts ChunkOptions) ([]Chunk, error) {
	if opts.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive")
	}
	if opts.ChunkOverlap < 0 {
		return nil, fmt.Errorf("chunk overlap cannot be negative")
	}

	if opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = opts.ChunkSize - 1
	}

	scanner := bufio.NewScanner(strings.NewReader(note.Content))
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", note.Path, err)
	}

	if len(lines) == 0 {
		return nil, nil
	}

	step := opts.ChunkSize - opts.ChunkOverlap

	var chunks []Chunk
	for start := 0; start < len(lines); start += step {
		end := min(start+opts.ChunkSize, len(lines))

		content := strings.Join(lines[start:end], "\n")
		sum := md5.Sum([]byte(content))

		chunks = append(chunks, Chunk{
			Path:        note.Path,
			StartLine:   start + 1,
			EndLine:     end,
			Content:     content,
			ContentHash: hex.EncodeToString(sum[:]),
		})

		if end == len(lines) {
			break
		}
	}

	return chunks, nil
}
