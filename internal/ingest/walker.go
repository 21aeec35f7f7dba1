package ingest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"
	gitignore "github.com/sabhiram/go-gitignore"
)

// FileInfo describes a document file discovered during a walk.
type FileInfo struct {
	Path    string    // absolute path
	RelPath string    // path relative to the walk root
	Size    int64     // size in bytes
	ModTime time.Time // last modification time
	Hash    string    // xxhash of file contents
}

// WalkOptions configures the document walker.
type WalkOptions struct {
	// Root is the directory to walk.
	Root string

	// MaxFileSize skips files larger than this many bytes. Zero means
	// no limit.
	MaxFileSize int64

	// IgnorePatterns are skipped paths in gitignore syntax, applied on
	// top of any .gitignore found at the root.
	IgnorePatterns []string

	// UseGitignore respects a .gitignore file at the root.
	UseGitignore bool

	// Extensions limits the walk to specific file extensions. Empty
	// means all text files.
	Extensions []string
}

// WalkStats counts what a walk saw and skipped.
type WalkStats struct {
	FilesFound   int
	FilesSkipped int
	DirsSkipped  int
	TotalBytes   int64
}

type ignorer interface {
	MatchesPath(path string) bool
}

// combinedIgnorer matches against both the root .gitignore and the
// configured patterns.
type combinedIgnorer struct {
	file     *gitignore.GitIgnore
	patterns *gitignore.GitIgnore
}

func (c *combinedIgnorer) MatchesPath(path string) bool {
	return c.file.MatchesPath(path) || c.patterns.MatchesPath(path)
}

// DocumentWalker finds ingestable text documents under a root directory,
// honoring gitignore-style filters and skipping binary files.
type DocumentWalker struct {
	opts    WalkOptions
	ignorer ignorer
	extSet  map[string]bool
	stats   WalkStats
}

// NewDocumentWalker creates a walker over opts.Root.
func NewDocumentWalker(opts WalkOptions) (*DocumentWalker, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}
	opts.Root = root

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", root)
	}

	w := &DocumentWalker{opts: opts}

	if len(opts.Extensions) > 0 {
		w.extSet = make(map[string]bool)
		for _, ext := range opts.Extensions {
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			w.extSet[strings.ToLower(ext)] = true
		}
	}

	w.initIgnorer()
	return w, nil
}

func (w *DocumentWalker) initIgnorer() {
	patterns := gitignore.CompileIgnoreLines(w.opts.IgnorePatterns...)

	if w.opts.UseGitignore {
		gitignorePath := filepath.Join(w.opts.Root, ".gitignore")
		if _, err := os.Stat(gitignorePath); err == nil {
			gi, err := gitignore.CompileIgnoreFile(gitignorePath)
			if err != nil {
				log.Warn("Failed to parse .gitignore", "path", gitignorePath, "error", err)
			} else {
				w.ignorer = &combinedIgnorer{file: gi, patterns: patterns}
				return
			}
		}
	}

	w.ignorer = patterns
}

// Walk traverses the root and calls fn for each ingestable file.
func (w *DocumentWalker) Walk(fn func(FileInfo) error) error {
	w.stats = WalkStats{}

	return filepath.WalkDir(w.opts.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			log.Debug("Error accessing path", "path", path, "error", err)
			return nil
		}

		relPath, err := filepath.Rel(w.opts.Root, path)
		if err != nil {
			relPath = path
		}

		if d.IsDir() {
			if w.shouldSkipDir(d.Name(), relPath) {
				w.stats.DirsSkipped++
				return filepath.SkipDir
			}
			return nil
		}

		if w.shouldSkipFile(d.Name(), relPath) {
			w.stats.FilesSkipped++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			log.Debug("Failed to get file info", "path", path, "error", err)
			return nil
		}
		if w.opts.MaxFileSize > 0 && info.Size() > w.opts.MaxFileSize {
			w.stats.FilesSkipped++
			return nil
		}

		if w.extSet != nil && !w.extSet[strings.ToLower(filepath.Ext(path))] {
			w.stats.FilesSkipped++
			return nil
		}

		if isBinary, err := isBinaryFile(path); err != nil || isBinary {
			w.stats.FilesSkipped++
			return nil
		}

		hash, err := hashFile(path)
		if err != nil {
			log.Debug("Failed to hash file", "path", path, "error", err)
			return nil
		}

		w.stats.FilesFound++
		w.stats.TotalBytes += info.Size()

		return fn(FileInfo{
			Path:    path,
			RelPath: relPath,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Hash:    hash,
		})
	})
}

// Stats returns statistics from the last walk.
func (w *DocumentWalker) Stats() WalkStats {
	return w.stats
}

func (w *DocumentWalker) shouldSkipDir(name, relPath string) bool {
	if name == ".git" || strings.HasPrefix(name, ".") {
		return true
	}
	return w.ignorer.MatchesPath(relPath + "/")
}

func (w *DocumentWalker) shouldSkipFile(name, relPath string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	return w.ignorer.MatchesPath(relPath)
}

// hashFile computes the xxhash of a file's contents.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// HashContent computes the xxhash of content bytes.
func HashContent(content []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(content))
}

// isBinaryFile sniffs the first 512 bytes for NUL, the same heuristic
// git uses.
func isBinaryFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return false, err
	}
	return bytes.IndexByte(buf[:n], 0) != -1, nil
}
