// ProjectFileSystem implements binarycache.FileSystem against a directory on
// disk named by config's project.path/project.archive (spec.md §1 "explicitly
// out of scope": the archive/file system is an external collaborator). It
// walks the tree the way cmd/glyph's directory-mode commands do, with
// os.ReadFile/filepath.Walk rather than anything archive-format-aware —
// real GZDoom pk3 containers are out of scope here, so "archive" is just the
// single project.archive name every script under project.path is qualified
// with.
package dapserver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/glyphlang/glyph-dap/internal/scriptref"
)

// ProjectFileSystem resolves script paths under one root directory, all
// qualified with the same archive name.
type ProjectFileSystem struct {
	root    string
	archive string

	mu    sync.RWMutex
	index map[string]string // lowercased relPath -> relPath as found on disk
}

// NewProjectFileSystem creates a ProjectFileSystem rooted at root, qualifying
// every script it finds with archive. An empty root disables resolution.
func NewProjectFileSystem(root, archive string) *ProjectFileSystem {
	fs := &ProjectFileSystem{root: root, archive: archive, index: make(map[string]string)}
	if root != "" {
		fs.Rescan()
	}
	return fs
}

// Rescan walks root and rebuilds the relPath index. Safe to call again after
// an fsnotify event adds or removes a file.
func (fs *ProjectFileSystem) Rescan() {
	if fs.root == "" {
		return
	}
	index := make(map[string]string)
	_ = filepath.Walk(fs.root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !scriptref.IsScriptPath(path) {
			return nil
		}
		rel, rerr := filepath.Rel(fs.root, path)
		if rerr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		index[strings.ToLower(rel)] = rel
		return nil
	})
	fs.mu.Lock()
	fs.index = index
	fs.mu.Unlock()
}

// ArchiveFor reports the archive containing relPath, if the project indexes
// it at all.
func (fs *ProjectFileSystem) ArchiveFor(relPath string) (string, bool) {
	fs.mu.RLock()
	_, ok := fs.index[strings.ToLower(filepath.ToSlash(relPath))]
	fs.mu.RUnlock()
	if !ok {
		return "", false
	}
	return fs.archive, true
}

// ReadScript reads the raw bytes of the script at qualifiedPath
// ("archive:path"), ignoring the archive component since this implementation
// only ever serves one archive.
func (fs *ProjectFileSystem) ReadScript(qualifiedPath string) ([]byte, error) {
	_, relPath := scriptref.Split(qualifiedPath)
	fs.mu.RLock()
	actual, ok := fs.index[strings.ToLower(filepath.ToSlash(relPath))]
	fs.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("dapserver: script %q not found under project path", relPath)
	}
	return os.ReadFile(filepath.Join(fs.root, filepath.FromSlash(actual)))
}
