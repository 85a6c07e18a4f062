package testutil

import (
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// WriteFile writes content to a file in the real filesystem.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll(%s) error: %v", dir, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile(%s) error: %v", path, err)
	}
}

// ReadFile reads content from a file.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error: %v", path, err)
	}
	return string(data)
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// DirExists checks if a directory exists.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// CreateFileTree creates multiple files from a map of path -> content.
func CreateFileTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		WriteFile(t, filepath.Join(root, name), content)
	}
}

// ListFiles returns all files below root as sorted slash-separated relative paths.
func ListFiles(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WalkDir(%s) error: %v", root, err)
	}
	sort.Strings(files)
	return files
}

// RequireGit skips the test when no git executable is on PATH.
func RequireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

// WriteScript writes an executable shell script to dir and returns its
// path. The test is skipped where shell scripts cannot run.
func WriteScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatalf("failed to write script %s: %v", path, err)
	}
	return path
}

// Repo is a throwaway git repository with a worktree, built through go-git
// so that commit dates can be set explicitly.
type Repo struct {
	Path string

	t    *testing.T
	repo *git.Repository
	wt   *git.Worktree
}

// NewRepo initializes an empty repository in a temp directory.
func NewRepo(t *testing.T) *Repo {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit error: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree error: %v", err)
	}
	return &Repo{Path: dir, t: t, repo: repo, wt: wt}
}

// Change describes one commit: files to write and paths to delete.
type Change struct {
	Write  map[string]string
	Delete []string
}

// Commit applies change and records a commit with both author and committer
// set to when. It returns the full hash.
func (r *Repo) Commit(when time.Time, message string, change Change) string {
	r.t.Helper()
	return r.commit(when, message, change, nil)
}

// Merge records a commit with the given parents and the current worktree.
func (r *Repo) Merge(when time.Time, message string, parents ...string) string {
	r.t.Helper()
	hashes := make([]plumbing.Hash, len(parents))
	for i, p := range parents {
		hashes[i] = plumbing.NewHash(p)
	}
	return r.commit(when, message, Change{}, hashes)
}

func (r *Repo) commit(when time.Time, message string, change Change, parents []plumbing.Hash) string {
	r.t.Helper()

	names := make([]string, 0, len(change.Write))
	for name := range change.Write {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		WriteFile(r.t, filepath.Join(r.Path, name), change.Write[name])
		if _, err := r.wt.Add(name); err != nil {
			r.t.Fatalf("Add(%s) error: %v", name, err)
		}
	}
	for _, name := range change.Delete {
		if _, err := r.wt.Remove(name); err != nil {
			r.t.Fatalf("Remove(%s) error: %v", name, err)
		}
	}

	sig := &object.Signature{Name: "Test", Email: "test@example.com", When: when}
	hash, err := r.wt.Commit(message, &git.CommitOptions{
		Author:            sig,
		Committer:         sig,
		Parents:           parents,
		AllowEmptyCommits: true,
	})
	if err != nil {
		r.t.Fatalf("Commit(%q) error: %v", message, err)
	}
	return hash.String()
}

// Head returns the hash HEAD points at.
func (r *Repo) Head() string {
	r.t.Helper()
	ref, err := r.repo.Head()
	if err != nil {
		r.t.Fatalf("Head error: %v", err)
	}
	return ref.Hash().String()
}
