package index

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/ragserve/internal/chunk"
	"github.com/nickcecere/ragserve/internal/index/lockfile"
)

// Snapshot artifact names. The three files form one logical snapshot and
// are only valid together; a directory missing any of them is treated as
// absent.
const (
	vectorsFile  = "vectors.bin"
	chunksFile   = "chunks.gob"
	metadataFile = "metadata.json"
	lockFile     = "index.lock"
)

// Vector artifact binary format.
const (
	snapshotMagic   = 0x52475356 // ASCII "RGSV"
	snapshotVersion = 1
)

func init() {
	// Chunk metadata values travel through gob as interface values and
	// need their concrete types registered.
	gob.Register(map[string]any{})
	gob.Register([]any(nil))
	gob.Register("")
	gob.Register(0)
	gob.Register(0.0)
	gob.Register(false)
}

// snapshotManager makes flat-store state durable. Saves go through a
// lock-protected temp-dir-and-rename protocol so a crash mid-save never
// corrupts the previous snapshot; loads verify the slot-count invariant
// across all three artifacts before any state is returned.
type snapshotManager struct {
	dir         string
	lockTimeout time.Duration

	// rename is swapped out by fault-injection tests.
	rename func(oldpath, newpath string) error
}

func newSnapshotManager(dir string, lockTimeout time.Duration) *snapshotManager {
	return &snapshotManager{
		dir:         dir,
		lockTimeout: lockTimeout,
		rename:      os.Rename,
	}
}

// Save writes the three snapshot artifacts atomically with respect to
// process crash: everything is staged in a fresh temporary directory on
// the same filesystem, then renamed into place under the exclusive lock.
// On failure the canonical files are left untouched and the returned
// error wraps ErrPersistence (or lockfile.ErrLockTimeout on contention).
func (m *snapshotManager) Save(dim int, vectors [][]float32, chunks []chunk.Chunk) error {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("%w: failed to create index directory: %v", ErrPersistence, err)
	}

	lock, err := lockfile.Acquire(filepath.Join(m.dir, lockFile), m.lockTimeout)
	if err != nil {
		return err
	}
	defer lock.Release()

	// Stage in a sibling temp directory so each rename stays on the same
	// filesystem and is atomic.
	tmpDir, err := os.MkdirTemp(filepath.Dir(m.dir), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp directory: %v", ErrPersistence, err)
	}
	cleanup := func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			log.Warn("Failed to remove temp snapshot directory", "dir", tmpDir, "error", err)
		}
	}

	if err := writeVectors(filepath.Join(tmpDir, vectorsFile), dim, vectors); err != nil {
		cleanup()
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := writeChunks(filepath.Join(tmpDir, chunksFile), chunks); err != nil {
		cleanup()
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := writeSideTable(filepath.Join(tmpDir, metadataFile), chunks); err != nil {
		cleanup()
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	// The only step that mutates the canonical directory. Each canonical
	// file is moved aside into the temp directory before its replacement
	// is renamed into place, so a failure part-way can restore the prior
	// snapshot exactly. The trio as a whole is serialized by the lock.
	if err := m.install(tmpDir); err != nil {
		cleanup()
		return err
	}

	cleanup()
	log.Debug("Saved index snapshot", "dir", m.dir, "chunks", len(chunks))
	return nil
}

// install replaces the canonical artifacts with the staged ones. Prior
// artifacts are parked in tmpDir first; if any rename fails the already
// installed files are rolled back, leaving the canonical directory equal
// to its pre-save state.
func (m *snapshotManager) install(tmpDir string) error {
	type installed struct {
		name    string
		hadPrev bool
	}
	var done []installed

	rollback := func() {
		for i := len(done) - 1; i >= 0; i-- {
			canonical := filepath.Join(m.dir, done[i].name)
			if done[i].hadPrev {
				if err := os.Rename(filepath.Join(tmpDir, done[i].name+".prev"), canonical); err != nil {
					log.Error("Failed to restore prior snapshot artifact", "file", done[i].name, "error", err)
				}
			} else if err := os.Remove(canonical); err != nil {
				log.Error("Failed to remove partially installed artifact", "file", done[i].name, "error", err)
			}
		}
	}

	for _, name := range []string{vectorsFile, chunksFile, metadataFile} {
		canonical := filepath.Join(m.dir, name)
		backup := filepath.Join(tmpDir, name+".prev")

		hadPrev := false
		if _, err := os.Stat(canonical); err == nil {
			if err := os.Rename(canonical, backup); err != nil {
				rollback()
				return fmt.Errorf("%w: failed to park prior %s: %v", ErrPersistence, name, err)
			}
			hadPrev = true
		}

		if err := m.rename(filepath.Join(tmpDir, name), canonical); err != nil {
			if hadPrev {
				if rerr := os.Rename(backup, canonical); rerr != nil {
					log.Error("Failed to restore prior snapshot artifact", "file", name, "error", rerr)
				}
			}
			rollback()
			return fmt.Errorf("%w: failed to move %s into place: %v", ErrPersistence, name, err)
		}
		done = append(done, installed{name: name, hadPrev: hadPrev})
	}

	return nil
}

// Load reads the snapshot under a shared lock. A directory with any
// artifact missing counts as a first run and yields an empty store. A
// present snapshot whose artifacts disagree on slot count is corrupt and
// is never partially loaded.
func (m *snapshotManager) Load() (int, [][]float32, []chunk.Chunk, error) {
	if _, err := os.Stat(m.dir); os.IsNotExist(err) {
		return 0, nil, nil, nil
	}

	lock, err := lockfile.AcquireShared(filepath.Join(m.dir, lockFile), m.lockTimeout)
	if err != nil {
		return 0, nil, nil, err
	}
	defer lock.Release()

	for _, name := range []string{vectorsFile, chunksFile, metadataFile} {
		if _, err := os.Stat(filepath.Join(m.dir, name)); err != nil {
			log.Debug("No complete snapshot found, starting empty", "dir", m.dir, "missing", name)
			return 0, nil, nil, nil
		}
	}

	dim, vectors, err := readVectors(filepath.Join(m.dir, vectorsFile))
	if err != nil {
		return 0, nil, nil, err
	}
	chunks, err := readChunks(filepath.Join(m.dir, chunksFile))
	if err != nil {
		return 0, nil, nil, err
	}
	sideTable, err := readSideTable(filepath.Join(m.dir, metadataFile))
	if err != nil {
		return 0, nil, nil, err
	}

	if len(vectors) != len(chunks) || len(sideTable) != len(chunks) {
		return 0, nil, nil, fmt.Errorf("%w: %d vectors, %d chunks, %d side-table entries",
			ErrCorruptIndex, len(vectors), len(chunks), len(sideTable))
	}

	return dim, vectors, chunks, nil
}

// writeVectors serializes the vector index structure: a fixed header
// (magic, version, dimension, count, payload checksum) followed by the
// float32 little-endian vector data in slot order.
func writeVectors(path string, dim int, vectors [][]float32) error {
	payload := make([]byte, 0, len(vectors)*dim*4)
	for _, vec := range vectors {
		for _, v := range vec {
			payload = binary.LittleEndian.AppendUint32(payload, math.Float32bits(v))
		}
	}

	var buf bytes.Buffer
	header := [5]uint32{
		snapshotMagic,
		snapshotVersion,
		uint32(dim),
		uint32(len(vectors)),
		crc32.ChecksumIEEE(payload),
	}
	for _, v := range header {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("failed to write vector header: %w", err)
		}
	}
	buf.Write(payload)

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write vector index: %w", err)
	}
	return nil
}

// readVectors deserializes and verifies the vector artifact.
func readVectors(path string) (int, [][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: failed to read vector index: %v", ErrCorruptIndex, err)
	}
	if len(data) < 20 {
		return 0, nil, fmt.Errorf("%w: vector index truncated (%d bytes)", ErrCorruptIndex, len(data))
	}

	magic := binary.LittleEndian.Uint32(data[0:])
	version := binary.LittleEndian.Uint32(data[4:])
	dim := int(binary.LittleEndian.Uint32(data[8:]))
	count := int(binary.LittleEndian.Uint32(data[12:]))
	checksum := binary.LittleEndian.Uint32(data[16:])

	if magic != snapshotMagic {
		return 0, nil, fmt.Errorf("%w: bad magic number %#x", ErrCorruptIndex, magic)
	}
	if version != snapshotVersion {
		return 0, nil, fmt.Errorf("%w: unsupported snapshot version %d", ErrCorruptIndex, version)
	}

	payload := data[20:]
	if len(payload) != count*dim*4 {
		return 0, nil, fmt.Errorf("%w: vector payload is %d bytes, expected %d",
			ErrCorruptIndex, len(payload), count*dim*4)
	}
	if crc32.ChecksumIEEE(payload) != checksum {
		return 0, nil, fmt.Errorf("%w: vector payload checksum mismatch", ErrCorruptIndex)
	}

	vectors := make([][]float32, count)
	for i := 0; i < count; i++ {
		vec := make([]float32, dim)
		for j := 0; j < dim; j++ {
			bits := binary.LittleEndian.Uint32(payload[(i*dim+j)*4:])
			vec[j] = math.Float32frombits(bits)
		}
		vectors[i] = vec
	}
	return dim, vectors, nil
}

// writeChunks serializes the ordered chunk list.
func writeChunks(path string, chunks []chunk.Chunk) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(chunks); err != nil {
		return fmt.Errorf("failed to encode chunk list: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write chunk list: %w", err)
	}
	return nil
}

// readChunks deserializes the ordered chunk list.
func readChunks(path string) ([]chunk.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read chunk list: %v", ErrCorruptIndex, err)
	}
	defer f.Close()

	var chunks []chunk.Chunk
	if err := gob.NewDecoder(f).Decode(&chunks); err != nil {
		return nil, fmt.Errorf("%w: failed to decode chunk list: %v", ErrCorruptIndex, err)
	}
	return chunks, nil
}

// writeSideTable writes the slot-id -> chunk JSON object. The side table
// exists for inspection and debugging; search never reads it.
func writeSideTable(path string, chunks []chunk.Chunk) error {
	table := make(map[string]chunk.Chunk, len(chunks))
	for slot, c := range chunks {
		table[strconv.Itoa(slot)] = c
	}

	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode side table: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write side table: %w", err)
	}
	return nil
}

// readSideTable reads the slot-id -> chunk JSON object.
func readSideTable(path string) (map[string]chunk.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read side table: %v", ErrCorruptIndex, err)
	}

	var table map[string]chunk.Chunk
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("%w: failed to decode side table: %v", ErrCorruptIndex, err)
	}
	return table, nil
}
