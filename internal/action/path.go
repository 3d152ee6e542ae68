package action

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrInvalidPath is returned when a raw path cannot be described as a Path.
var ErrInvalidPath = errors.New("invalid path")

// MdExtension is the extension carried by every MdFile path.
const MdExtension = "md"

// Kind discriminates folders, plain files and markdown files.
type Kind int

const (
	KindFolder Kind = iota
	KindFile
	KindMdFile
)

func (k Kind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindFile:
		return "file"
	case KindMdFile:
		return "md_file"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Key identifies the store location an action targets. Folder keys end in
// a slash so a folder named like a file never shares a key with it.
type Key string

// Path describes a location in the store. Parts holds the ancestor segments
// from the root down to the parent; Basename excludes the extension.
//
// Paths are values: constructors copy their inputs and no method mutates
// the receiver.
type Path struct {
	Kind      Kind
	Parts     []string
	Basename  string
	Extension string
}

// Folder builds a folder path.
func Folder(parts []string, name string) Path {
	return Path{Kind: KindFolder, Parts: cloneParts(parts), Basename: name}
}

// File builds a non-markdown file path.
func File(parts []string, name, ext string) Path {
	return Path{Kind: KindFile, Parts: cloneParts(parts), Basename: name, Extension: strings.TrimPrefix(ext, ".")}
}

// MdFile builds a markdown file path.
func MdFile(parts []string, name string) Path {
	return Path{Kind: KindMdFile, Parts: cloneParts(parts), Basename: name, Extension: MdExtension}
}

// ParsePath converts a slash separated store path into a Path. Names ending
// in .md are markdown files, other extensions are plain files and anything
// without an extension is a folder.
func ParsePath(raw string) (Path, error) {
	clean := NormalizeRaw(raw)
	if clean == "" {
		return Path{}, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	segments := strings.Split(clean, "/")
	for _, seg := range segments {
		if seg == "" || seg == "." || seg == ".." {
			return Path{}, fmt.Errorf("%w: %q", ErrInvalidPath, raw)
		}
	}
	parents := segments[:len(segments)-1]
	name := segments[len(segments)-1]

	ext := path.Ext(name)
	if ext == "" || ext == name {
		return Folder(parents, name), nil
	}
	base := strings.TrimSuffix(name, ext)
	ext = strings.TrimPrefix(ext, ".")
	if strings.EqualFold(ext, MdExtension) {
		return MdFile(parents, base), nil
	}
	return File(parents, base, ext), nil
}

// MustParsePath is ParsePath for literals known to be valid.
func MustParsePath(raw string) Path {
	p, err := ParsePath(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// NormalizeRaw brings a raw store path into the form produced by Path.String.
func NormalizeRaw(raw string) string {
	clean := strings.TrimSpace(strings.ReplaceAll(raw, "\\", "/"))
	for strings.HasPrefix(clean, "./") {
		clean = strings.TrimPrefix(clean, "./")
	}
	clean = strings.Trim(clean, "/")
	if clean == "." {
		return ""
	}
	return clean
}

// Name returns the final segment including the extension.
func (p Path) Name() string {
	if p.Kind == KindFolder || p.Extension == "" {
		return p.Basename
	}
	return p.Basename + "." + p.Extension
}

// String renders the slash separated store path.
func (p Path) String() string {
	if len(p.Parts) == 0 {
		return p.Name()
	}
	return strings.Join(p.Parts, "/") + "/" + p.Name()
}

// Key returns the identity used to group actions on the same location.
func (p Path) Key() Key {
	if p.Kind == KindFolder {
		return Key(p.String() + "/")
	}
	return Key(p.String())
}

// Depth is the number of ancestor segments.
func (p Path) Depth() int {
	return len(p.Parts)
}

// Equal reports structural equality.
func (p Path) Equal(other Path) bool {
	if p.Kind != other.Kind || p.Basename != other.Basename || len(p.Parts) != len(other.Parts) {
		return false
	}
	if p.Kind != KindFolder && p.Extension != other.Extension {
		return false
	}
	for i := range p.Parts {
		if p.Parts[i] != other.Parts[i] {
			return false
		}
	}
	return true
}

// Parent returns the folder containing p. ok is false for root level paths.
func (p Path) Parent() (parent Path, ok bool) {
	if len(p.Parts) == 0 {
		return Path{}, false
	}
	last := len(p.Parts) - 1
	return Folder(p.Parts[:last], p.Parts[last]), true
}

// Ancestors returns every folder above p, root-most first.
func (p Path) Ancestors() []Path {
	if len(p.Parts) == 0 {
		return nil
	}
	out := make([]Path, 0, len(p.Parts))
	for i := range p.Parts {
		out = append(out, Folder(p.Parts[:i], p.Parts[i]))
	}
	return out
}

// Contains reports whether other lies strictly below the folder p.
func (p Path) Contains(other Path) bool {
	if p.Kind != KindFolder {
		return false
	}
	prefix := append(cloneParts(p.Parts), p.Basename)
	if len(other.Parts) < len(prefix) {
		return false
	}
	for i := range prefix {
		if other.Parts[i] != prefix[i] {
			return false
		}
	}
	return true
}

func cloneParts(parts []string) []string {
	if len(parts) == 0 {
		return nil
	}
	return append([]string(nil), parts...)
}
