package store

// Op is the kind of raw change notification the store emits. Content
// modifications are not part of the notification model; only structural
// changes are reported.
type Op string

const (
	OpCreated Op = "created"
	OpDeleted Op = "deleted"
	OpRenamed Op = "renamed"
)

// Event is a raw change notification about Path, slash separated and
// relative to the store root. A rename is reported on the path that moved
// away; its destination arrives as a separate created event.
type Event struct {
	Op   Op     `json:"op"`
	Path string `json:"path"`
}
