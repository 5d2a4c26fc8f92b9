// Package common holds small filesystem and path helpers shared by every
// component of the engine, in the same spirit as the teacher's own
// catch-all common package: no component-specific logic, just the plumbing
// every other package needs.
package common

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// maxPathComponentBytes bounds a single rendered path segment so that
// directory templates built from long gallery titles stay within
// filesystem limits on every supported OS.
const maxPathComponentBytes = 120

// ResolveRelativePath expands target relative to relativeTo if target is a
// relative path; an already-absolute or empty target is returned unchanged.
func ResolveRelativePath(target, relativeTo string) string {
	if target == "" {
		return target
	}

	if filepath.IsAbs(target) {
		return target
	}

	target = filepath.Join(relativeTo, target)
	target = filepath.Clean(target)

	return target
}

// SanitizePathComponent replaces characters that are invalid in a path
// component on common filesystems with "_", trims trailing dots/spaces, and
// caps the result at maxPathComponentBytes without splitting a UTF-8
// codepoint.
func SanitizePathComponent(name string) string {
	replacer := strings.NewReplacer(
		"<", "_",
		">", "_",
		":", "_",
		"\"", "_",
		"/", "_",
		"\\", "_",
		"|", "_",
		"?", "_",
		"*", "_",
	)

	sanitized := replacer.Replace(name)
	sanitized = strings.TrimRight(sanitized, ". ")
	if sanitized == "" {
		sanitized = "_"
	}

	return truncateUTF8(sanitized, maxPathComponentBytes)
}

// truncateUTF8 returns the longest prefix of s whose byte length does not
// exceed maxBytes, never cutting in the middle of a multi-byte rune.
func truncateUTF8(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}

	// Cutting right before a rune start never splits a rune, so back up
	// from maxBytes until the first dropped byte begins a rune.
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	return s[:cut]
}

// FindAvailableFileName returns a path under dirName built from nameStem and
// extension, appending a numeric " (n)" suffix until a name that does not
// yet exist on disk is found, or maxRetry attempts are exhausted.
func FindAvailableFileName(dirName, nameStem, extension string, maxRetry int) (string, error) {
	filePath := filepath.Join(dirName, nameStem+extension)

	var returnErr error

	_, err := os.Stat(filePath)
	i := 1
	for !errors.Is(err, os.ErrNotExist) {
		if i > maxRetry {
			returnErr = errors.New("maximum retry count reached")
			break
		}

		filePath = filepath.Join(dirName, fmt.Sprintf("%s (%d)%s", nameStem, i, extension))
		_, err = os.Stat(filePath)

		i++
	}

	return filePath, returnErr
}

// AtomicWriteFile writes data to a temp file in the same directory as path
// and renames it into place, so readers never observe a partially written
// file.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %s", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file for %s: %s", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file for %s: %s", path, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod temp file for %s: %s", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename temp file into place for %s: %s", path, err)
	}

	return nil
}
