package action

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownTransform is returned by LookupTransform for unregistered names.
var ErrUnknownTransform = errors.New("unknown transform")

// Transform rewrites markdown content.
type Transform func(ctx context.Context, content string) (string, error)

// Then returns a transform running t and then next on its output.
func (t Transform) Then(next Transform) Transform {
	switch {
	case t == nil:
		return next
	case next == nil:
		return t
	}
	return func(ctx context.Context, content string) (string, error) {
		out, err := t(ctx, content)
		if err != nil {
			return "", err
		}
		return next(ctx, out)
	}
}

// Apply runs t, treating a nil transform as identity.
func (t Transform) Apply(ctx context.Context, content string) (string, error) {
	if t == nil {
		return content, nil
	}
	return t(ctx, content)
}

// Pure lifts a plain string function into a Transform.
func Pure(fn func(string) string) Transform {
	return func(_ context.Context, content string) (string, error) {
		return fn(content), nil
	}
}

// LookupTransform resolves a named transform used by batch files and the CLI.
func LookupTransform(name, arg string) (Transform, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "upper":
		return Pure(strings.ToUpper), nil
	case "lower":
		return Pure(strings.ToLower), nil
	case "trim":
		return Pure(strings.TrimSpace), nil
	case "append":
		return Pure(func(s string) string { return s + arg }), nil
	case "prepend":
		return Pure(func(s string) string { return arg + s }), nil
	case "replace":
		oldText, newText, ok := strings.Cut(arg, "=>")
		if !ok || oldText == "" {
			return nil, fmt.Errorf("replace transform expects old=>new, got %q", arg)
		}
		return Pure(func(s string) string { return strings.ReplaceAll(s, oldText, newText) }), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTransform, name)
}
