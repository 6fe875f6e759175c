package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrOutsideRoot = errors.New("path is outside the upload root")

// ResolveUnder maps a path received over the control API to a file inside
// root. Relative paths are taken from root; absolute ones must already lie
// beneath it. Symlinks are followed, so a link inside root that points out
// of it is refused as well.
func ResolveUnder(userPath, root string) (string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid upload root: %w", err)
	}

	p := filepath.Clean(userPath)
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	if err := within(root, p); err != nil {
		return "", err
	}

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("invalid upload root: %w", err)
	}
	realPath, err := filepath.EvalSymlinks(p)
	if errors.Is(err, os.ErrNotExist) {
		// Nothing to follow yet; opening it later fails on its own.
		return p, nil
	}
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	if err := within(realRoot, realPath); err != nil {
		return "", err
	}
	return p, nil
}

func within(root, p string) error {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ErrOutsideRoot
	}
	return nil
}

// IsSafeFilename reports whether name can be announced to the host as a
// bare file name. It ends up quoted inside a Content-Disposition header, so
// quotes and line breaks are refused too.
func IsSafeFilename(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, "/\\\x00\"\r\n") {
		return false
	}
	return true
}
