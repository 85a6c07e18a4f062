package vcs

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func (m *Mirror) commitObject(hash string) (*object.Commit, error) {
	repo, err := m.open()
	if err != nil {
		return nil, err
	}
	c, err := repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", hash, err)
	}
	return c, nil
}

// Parent returns the first parent of hash, or ErrNoParent for a root commit.
func (m *Mirror) Parent(_ context.Context, hash string) (string, error) {
	c, err := m.commitObject(hash)
	if err != nil {
		return "", err
	}
	if c.NumParents() == 0 {
		return "", ErrNoParent
	}
	return c.ParentHashes[0].String(), nil
}

// ChangedFiles lists the paths touched by hash relative to its parent whose
// suffix is one of extensions. Like `git diff-tree -r`, root and merge
// commits report no paths. Deleted files are reported by their old path.
func (m *Mirror) ChangedFiles(ctx context.Context, hash string, extensions []string) ([]string, error) {
	c, err := m.commitObject(hash)
	if err != nil {
		return nil, err
	}
	if c.NumParents() != 1 {
		return nil, nil
	}

	parent, err := c.Parent(0)
	if err != nil {
		return nil, fmt.Errorf("parent of %s: %w", hash, err)
	}
	from, err := parent.Tree()
	if err != nil {
		return nil, err
	}
	to, err := c.Tree()
	if err != nil {
		return nil, err
	}

	changes, err := from.DiffContext(ctx, to)
	if err != nil {
		return nil, fmt.Errorf("diff %s: %w", hash, err)
	}

	seen := make(map[string]struct{}, len(changes))
	var paths []string
	for _, ch := range changes {
		name := ch.To.Name
		if name == "" {
			name = ch.From.Name
		}
		if _, dup := seen[name]; dup || !HasExtension(name, extensions) {
			continue
		}
		seen[name] = struct{}{}
		paths = append(paths, name)
	}
	return paths, nil
}

// HasExtension reports whether path ends with one of extensions.
func HasExtension(path string, extensions []string) bool {
	for _, ext := range extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
