package vcs

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/panbanda/coremetrics/internal/proc"
)

// ErrUnsafePath is returned when an archive entry would land outside the
// destination directory.
var ErrUnsafePath = errors.New("path escapes destination")

// ExportFull replaces dest with the complete tree of hash. The tree is
// streamed from `git archive` and unpacked in process. Symlinks are recreated
// when their target stays inside dest; other special entries are skipped.
func (m *Mirror) ExportFull(ctx context.Context, hash, dest string) error {
	if err := ResetDir(dest); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, m.archiveTimeout)
	defer cancel()

	args := []string{"archive", "--format=tar", hash}
	cmd := proc.CommandContext(ctx, m.gitBinary, args...)
	cmd.Dir = m.path

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return &CommandError{Args: args, Err: err}
	}

	extractErr := extractTar(stdout, dest)
	if extractErr != nil {
		cancel()
	} else {
		// trailing record padding
		_, _ = io.Copy(io.Discard, stdout)
	}
	waitErr := cmd.Wait()

	if extractErr != nil {
		return fmt.Errorf("extract %s: %w", hash, extractErr)
	}
	if waitErr != nil {
		if ctx.Err() != nil {
			waitErr = ctx.Err()
		}
		return &CommandError{Args: args, Stderr: strings.TrimSpace(stderr.String()), Err: waitErr}
	}
	return nil
}

// extractTar unpacks directories, regular files and in-tree symlinks from r
// into dest.
func extractTar(r io.Reader, dest string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			target, err := safeJoin(dest, hdr.Name)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			target, err := safeJoin(dest, hdr.Name)
			if err != nil {
				return err
			}
			if err := writeFile(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			target, err := safeJoin(dest, hdr.Name)
			if err != nil {
				return err
			}
			if !linkInside(dest, hdr.Name, hdr.Linkname) {
				continue
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		}
	}
}

// linkInside reports whether the symlink name -> linkname resolves within
// root. Absolute link targets never do.
func linkInside(root, name, linkname string) bool {
	if linkname == "" || filepath.IsAbs(linkname) || strings.HasPrefix(linkname, "/") {
		return false
	}
	_, err := safeJoin(root, path.Join(path.Dir(name), linkname))
	return err == nil
}

// ExportSparse replaces dest with only the given paths of hash. Paths absent
// from the commit's tree are skipped. It returns the number of files written;
// zero means there is nothing to analyze.
func (m *Mirror) ExportSparse(ctx context.Context, hash string, paths []string, dest string) (int, error) {
	if err := ResetDir(dest); err != nil {
		return 0, err
	}
	if len(paths) == 0 {
		return 0, nil
	}

	c, err := m.commitObject(hash)
	if err != nil {
		return 0, err
	}
	tree, err := c.Tree()
	if err != nil {
		return 0, err
	}

	written := 0
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		f, err := tree.File(p)
		if errors.Is(err, object.ErrFileNotFound) {
			continue
		}
		if err != nil {
			return written, fmt.Errorf("lookup %s at %s: %w", p, hash, err)
		}

		target, err := safeJoin(dest, p)
		if err != nil {
			return written, err
		}
		rc, err := f.Reader()
		if err != nil {
			return written, err
		}
		err = writeFile(target, rc, 0o644)
		rc.Close()
		if err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// ResetDir removes dir and recreates it empty.
func ResetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

func safeJoin(root, name string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return target, nil
}

func writeFile(path string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0o644
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
