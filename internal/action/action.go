package action

import "fmt"

// Type names an action variant.
type Type string

const (
	TypeCreateFolder Type = "create_folder"
	TypeTrashFolder  Type = "trash_folder"
	TypeRenameFolder Type = "rename_folder"
	TypeCreateFile   Type = "create_file"
	TypeTrashFile    Type = "trash_file"
	TypeRenameFile   Type = "rename_file"
	TypeUpsertMdFile Type = "upsert_md_file"
	TypeProcessMd    Type = "process_md_file"
	TypeTrashMdFile  Type = "trash_md_file"
	TypeRenameMdFile Type = "rename_md_file"
)

// Action is one mutation intent against the store. The set of
// implementations is closed; switch on the concrete type.
type Action interface {
	Type() Type
	// Key groups actions targeting the same resource. Renames are keyed by
	// their source.
	Key() Key
	// Target is the location the action leaves behind: the destination for
	// renames, the single path otherwise.
	Target() Path
	String() string
	sealed()
}

type CreateFolder struct{ Path Path }

type TrashFolder struct{ Path Path }

type RenameFolder struct{ From, To Path }

type CreateFile struct{ Path Path }

type TrashFile struct{ Path Path }

type RenameFile struct{ From, To Path }

// UpsertMdFile writes Content to Path. A nil Content only ensures the file
// exists and never overwrites what is already there.
type UpsertMdFile struct {
	Path    Path
	Content *string
}

// ProcessMdFile applies Transform to an existing markdown file.
type ProcessMdFile struct {
	Path      Path
	Transform Transform
}

type TrashMdFile struct{ Path Path }

type RenameMdFile struct{ From, To Path }

// Upsert returns an UpsertMdFile that sets content.
func Upsert(p Path, content string) UpsertMdFile {
	return UpsertMdFile{Path: p, Content: &content}
}

// EnsureExist returns an UpsertMdFile with no content.
func EnsureExist(p Path) UpsertMdFile {
	return UpsertMdFile{Path: p}
}

// IsEnsureExist reports whether the upsert carries no content.
func (a UpsertMdFile) IsEnsureExist() bool { return a.Content == nil }

func (CreateFolder) Type() Type  { return TypeCreateFolder }
func (TrashFolder) Type() Type   { return TypeTrashFolder }
func (RenameFolder) Type() Type  { return TypeRenameFolder }
func (CreateFile) Type() Type    { return TypeCreateFile }
func (TrashFile) Type() Type     { return TypeTrashFile }
func (RenameFile) Type() Type    { return TypeRenameFile }
func (UpsertMdFile) Type() Type  { return TypeUpsertMdFile }
func (ProcessMdFile) Type() Type { return TypeProcessMd }
func (TrashMdFile) Type() Type   { return TypeTrashMdFile }
func (RenameMdFile) Type() Type  { return TypeRenameMdFile }

func (a CreateFolder) Key() Key  { return a.Path.Key() }
func (a TrashFolder) Key() Key   { return a.Path.Key() }
func (a RenameFolder) Key() Key  { return a.From.Key() }
func (a CreateFile) Key() Key    { return a.Path.Key() }
func (a TrashFile) Key() Key     { return a.Path.Key() }
func (a RenameFile) Key() Key    { return a.From.Key() }
func (a UpsertMdFile) Key() Key  { return a.Path.Key() }
func (a ProcessMdFile) Key() Key { return a.Path.Key() }
func (a TrashMdFile) Key() Key   { return a.Path.Key() }
func (a RenameMdFile) Key() Key  { return a.From.Key() }

func (a CreateFolder) Target() Path  { return a.Path }
func (a TrashFolder) Target() Path   { return a.Path }
func (a RenameFolder) Target() Path  { return a.To }
func (a CreateFile) Target() Path    { return a.Path }
func (a TrashFile) Target() Path     { return a.Path }
func (a RenameFile) Target() Path    { return a.To }
func (a UpsertMdFile) Target() Path  { return a.Path }
func (a ProcessMdFile) Target() Path { return a.Path }
func (a TrashMdFile) Target() Path   { return a.Path }
func (a RenameMdFile) Target() Path  { return a.To }

func (a CreateFolder) String() string { return fmt.Sprintf("%s %s", a.Type(), a.Path) }
func (a TrashFolder) String() string  { return fmt.Sprintf("%s %s", a.Type(), a.Path) }
func (a RenameFolder) String() string { return fmt.Sprintf("%s %s -> %s", a.Type(), a.From, a.To) }
func (a CreateFile) String() string   { return fmt.Sprintf("%s %s", a.Type(), a.Path) }
func (a TrashFile) String() string    { return fmt.Sprintf("%s %s", a.Type(), a.Path) }
func (a RenameFile) String() string   { return fmt.Sprintf("%s %s -> %s", a.Type(), a.From, a.To) }
func (a ProcessMdFile) String() string {
	return fmt.Sprintf("%s %s", a.Type(), a.Path)
}
func (a TrashMdFile) String() string  { return fmt.Sprintf("%s %s", a.Type(), a.Path) }
func (a RenameMdFile) String() string { return fmt.Sprintf("%s %s -> %s", a.Type(), a.From, a.To) }

func (a UpsertMdFile) String() string {
	if a.Content == nil {
		return fmt.Sprintf("%s %s (ensure)", a.Type(), a.Path)
	}
	return fmt.Sprintf("%s %s (%d bytes)", a.Type(), a.Path, len(*a.Content))
}

func (CreateFolder) sealed()  {}
func (TrashFolder) sealed()   {}
func (RenameFolder) sealed()  {}
func (CreateFile) sealed()    {}
func (TrashFile) sealed()     {}
func (RenameFile) sealed()    {}
func (UpsertMdFile) sealed()  {}
func (ProcessMdFile) sealed() {}
func (TrashMdFile) sealed()   {}
func (RenameMdFile) sealed()  {}

// IsTrash reports whether a removes its target.
func IsTrash(a Action) bool {
	switch a.(type) {
	case TrashFolder, TrashFile, TrashMdFile:
		return true
	}
	return false
}

// Endpoints returns the source and destination of a rename. ok is false
// for every other action.
func Endpoints(a Action) (from, to Path, ok bool) {
	switch v := a.(type) {
	case RenameFolder:
		return v.From, v.To, true
	case RenameFile:
		return v.From, v.To, true
	case RenameMdFile:
		return v.From, v.To, true
	}
	return Path{}, Path{}, false
}

// SameRename reports whether two renames move the same source to the same
// destination.
func SameRename(a, b Action) bool {
	if a.Type() != b.Type() {
		return false
	}
	af, at, ok := Endpoints(a)
	if !ok {
		return false
	}
	bf, bt, _ := Endpoints(b)
	return af.Equal(bf) && at.Equal(bt)
}
