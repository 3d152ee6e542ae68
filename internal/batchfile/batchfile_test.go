package batchfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafo/shelf/internal/action"
)

const sampleBatch = `
- op: create_folder
  path: Library/v1.2
- op: upsert
  path: Library/v1.2/dune.md
  content: "# Dune"
- op: ensure
  path: inbox.md
- op: process
  path: inbox.md
  transform: append
  arg: " (read)"
- op: rename_md
  from: inbox.md
  to: Library/inbox.md
- op: rename_folder
  from: Drafts
  to: Library/Drafts
- op: create_file
  path: cover.png
- op: rename_file
  from: cover.png
  to: Library/cover.png
- op: trash_file
  path: old.pdf
- op: trash_md
  path: stale.md
- op: trash_folder
  path: Scratch
`

func TestDecodeAllOps(t *testing.T) {
	actions, err := Decode(strings.NewReader(sampleBatch))
	require.NoError(t, err)

	var got []string
	for _, a := range actions {
		got = append(got, a.String())
	}
	assert.Equal(t, []string{
		"create_folder Library/v1.2",
		"upsert_md_file Library/v1.2/dune.md (6 bytes)",
		"upsert_md_file inbox.md (ensure)",
		"process_md_file inbox.md",
		"rename_md_file inbox.md -> Library/inbox.md",
		"rename_folder Drafts -> Library/Drafts",
		"create_file cover.png",
		"rename_file cover.png -> Library/cover.png",
		"trash_file old.pdf",
		"trash_md_file stale.md",
		"trash_folder Scratch",
	}, got)

	folder := actions[0].(action.CreateFolder)
	assert.Equal(t, action.KindFolder, folder.Path.Kind)
	assert.Equal(t, "v1.2", folder.Path.Basename)

	proc := actions[3].(action.ProcessMdFile)
	out, err := proc.Transform.Apply(context.Background(), "Dune")
	require.NoError(t, err)
	assert.Equal(t, "Dune (read)", out)
}

func TestDecodeEmptyDocument(t *testing.T) {
	actions, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestDecodeRejectsBadEntries(t *testing.T) {
	cases := map[string]struct {
		doc  string
		want error
	}{
		"unknown op":        {doc: "- op: explode\n  path: a.md\n", want: ErrUnknownOp},
		"unknown transform": {doc: "- op: process\n  path: a.md\n  transform: shout\n", want: action.ErrUnknownTransform},
		"wrong kind":        {doc: "- op: trash_md\n  path: a.png\n", want: action.ErrInvalidPath},
		"bad path":          {doc: "- op: create_folder\n  path: a/../b\n", want: action.ErrInvalidPath},
		"missing to":        {doc: "- op: rename_md\n  from: a.md\n", want: action.ErrInvalidPath},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tc.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.Contains(t, err.Error(), "entry 1")
		})
	}
}

func TestDecodeUpsertNeedsContent(t *testing.T) {
	_, err := Decode(strings.NewReader("- op: upsert\n  path: a.md\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "use ensure")

	actions, err := Decode(strings.NewReader("- op: upsert\n  path: a.md\n  content: \"\"\n"))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.False(t, actions[0].(action.UpsertMdFile).IsEnsureExist())
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode(strings.NewReader("- op: ensure\n  path: a.md\n  contnet: x\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleBatch), 0o644))
	actions, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, actions, 11)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
