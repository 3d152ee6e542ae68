// Package batchfile reads batches of actions from YAML documents.
//
// A batch file is a list of entries:
//
//	- op: create_folder
//	  path: Library/Books
//	- op: upsert
//	  path: Library/Books/dune.md
//	  content: "# Dune"
//	- op: process
//	  path: Library/Books/dune.md
//	  transform: append
//	  arg: "\nread in 2024"
//	- op: rename_md
//	  from: inbox.md
//	  to: Library/inbox.md
package batchfile

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/leafo/shelf/internal/action"
)

// ErrUnknownOp is returned for entries whose op is not recognized.
var ErrUnknownOp = errors.New("unknown op")

// Entry is one decoded batch file line.
type Entry struct {
	Op        string  `yaml:"op"`
	Path      string  `yaml:"path,omitempty"`
	From      string  `yaml:"from,omitempty"`
	To        string  `yaml:"to,omitempty"`
	Content   *string `yaml:"content,omitempty"`
	Transform string  `yaml:"transform,omitempty"`
	Arg       string  `yaml:"arg,omitempty"`
}

// Load reads and decodes the batch file at path.
func Load(path string) ([]action.Action, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open batch file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a YAML batch document. An empty document is an empty batch.
func Decode(r io.Reader) ([]action.Action, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var entries []Entry
	if err := dec.Decode(&entries); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse batch file: %w", err)
	}

	actions := make([]action.Action, 0, len(entries))
	for i, e := range entries {
		a, err := e.Action()
		if err != nil {
			return nil, fmt.Errorf("entry %d (%s): %w", i+1, e.Op, err)
		}
		actions = append(actions, a)
	}
	return actions, nil
}

// Action converts the entry into the action it describes.
func (e Entry) Action() (action.Action, error) {
	switch e.Op {
	case "create_folder":
		p, err := parseAs(e.Path, action.KindFolder)
		return action.CreateFolder{Path: p}, err
	case "trash_folder":
		p, err := parseAs(e.Path, action.KindFolder)
		return action.TrashFolder{Path: p}, err
	case "rename_folder":
		from, to, err := parsePair(e.From, e.To, action.KindFolder)
		return action.RenameFolder{From: from, To: to}, err
	case "create_file":
		p, err := parseAs(e.Path, action.KindFile)
		return action.CreateFile{Path: p}, err
	case "trash_file":
		p, err := parseAs(e.Path, action.KindFile)
		return action.TrashFile{Path: p}, err
	case "rename_file":
		from, to, err := parsePair(e.From, e.To, action.KindFile)
		return action.RenameFile{From: from, To: to}, err
	case "upsert":
		p, err := parseAs(e.Path, action.KindMdFile)
		if err != nil {
			return nil, err
		}
		if e.Content == nil {
			return nil, fmt.Errorf("upsert of %s has no content, use ensure instead", p)
		}
		return action.Upsert(p, *e.Content), nil
	case "ensure":
		p, err := parseAs(e.Path, action.KindMdFile)
		return action.EnsureExist(p), err
	case "process":
		p, err := parseAs(e.Path, action.KindMdFile)
		if err != nil {
			return nil, err
		}
		transform, err := action.LookupTransform(e.Transform, e.Arg)
		if err != nil {
			return nil, err
		}
		return action.ProcessMdFile{Path: p, Transform: transform}, nil
	case "trash_md":
		p, err := parseAs(e.Path, action.KindMdFile)
		return action.TrashMdFile{Path: p}, err
	case "rename_md":
		from, to, err := parsePair(e.From, e.To, action.KindMdFile)
		return action.RenameMdFile{From: from, To: to}, err
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownOp, e.Op)
	}
}

// parseAs parses raw and checks it names the wanted kind. Folder names may
// contain dots, so any valid path can be read as a folder.
func parseAs(raw string, kind action.Kind) (action.Path, error) {
	p, err := action.ParsePath(raw)
	if err != nil {
		return action.Path{}, err
	}
	if p.Kind == kind {
		return p, nil
	}
	if kind == action.KindFolder {
		return action.Folder(p.Parts, p.Name()), nil
	}
	return action.Path{}, fmt.Errorf("%w: %s is a %s path, want %s", action.ErrInvalidPath, p, p.Kind, kind)
}

func parsePair(rawFrom, rawTo string, kind action.Kind) (from, to action.Path, err error) {
	if from, err = parseAs(rawFrom, kind); err != nil {
		return action.Path{}, action.Path{}, fmt.Errorf("from: %w", err)
	}
	if to, err = parseAs(rawTo, kind); err != nil {
		return action.Path{}, action.Path{}, fmt.Errorf("to: %w", err)
	}
	return from, to, nil
}
