package collection

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/civium/matchd/pkg/tenant"
)

// Durable layout: two artifacts per collection under the tenant path,
// rewritten in full on every mutation. A crash mid-write can corrupt the
// pair, so the loader treats any decode or invariant failure as "could not
// load" rather than crashing.
//
//	vectors.bin:    magic "FMV1" | version u16 | dim u32 | count u32 | count*dim float32 LE
//	tombstones.bin: magic "FMT1" | version u16 | count u32 | count*u32 LE (ascending)

const (
	vectorsFile    = "vectors.bin"
	tombstonesFile = "tombstones.bin"

	codecVersion uint16 = 1
)

var (
	vectorsMagic    = [4]byte{'F', 'M', 'V', '1'}
	tombstonesMagic = [4]byte{'F', 'M', 'T', '1'}
)

// ErrCorruptArtifact indicates a persisted artifact failed decoding or an
// invariant check.
var ErrCorruptArtifact = errors.New("corrupt collection artifact")

// Save rewrites both artifacts under root/<category>/<id>/<kind>. Each file
// is written to a temp file and renamed into place, so readers observe either
// the old or the new artifact, never a partial one.
func (c *Collection) Save(root string) error {
	dir := filepath.Join(root, filepath.FromSlash(c.key.Path()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating collection directory: %w", err)
	}

	// ioMu is held across both the snapshot and the writes so concurrent
	// saves hit disk in snapshot order; a later snapshot can never be
	// overwritten by an earlier one.
	c.ioMu.Lock()
	defer c.ioMu.Unlock()

	// Snapshot under the read lock; stored vectors are never mutated after
	// append, so copying the outer slice is enough.
	c.mu.RLock()
	vectors := append([][]float32(nil), c.vectors...)
	tombstones := make([]uint32, 0, len(c.tombstones))
	for pos := range c.tombstones {
		tombstones = append(tombstones, uint32(pos))
	}
	c.mu.RUnlock()
	sort.Slice(tombstones, func(i, j int) bool { return tombstones[i] < tombstones[j] })

	if err := writeAtomic(dir, vectorsFile, func(w *bufio.Writer) error {
		return encodeVectors(w, c.dim, vectors)
	}); err != nil {
		return fmt.Errorf("writing %s: %w", vectorsFile, err)
	}
	if err := writeAtomic(dir, tombstonesFile, func(w *bufio.Writer) error {
		return encodeTombstones(w, tombstones)
	}); err != nil {
		return fmt.Errorf("writing %s: %w", tombstonesFile, err)
	}
	return nil
}

// Load reconstructs a collection from its artifacts. A missing vectors
// artifact reports fs.ErrNotExist; anything else that fails to decode or
// violates an invariant reports ErrCorruptArtifact. The caller decides the
// fallback (the store reinitializes empty).
func Load(root string, key tenant.Key, dim int, logger *zap.Logger) (*Collection, error) {
	dir := filepath.Join(root, filepath.FromSlash(key.Path()))

	vectors, err := readVectors(filepath.Join(dir, vectorsFile), dim)
	if err != nil {
		return nil, err
	}

	// Tombstone artifact absence is tolerated: older layouts only wrote it
	// once the first position was invalidated.
	tombstones, err := readTombstones(filepath.Join(dir, tombstonesFile), len(vectors))
	if err != nil {
		return nil, err
	}

	c := New(key, dim, logger)
	c.vectors = vectors
	c.tombstones = tombstones
	return c, nil
}

func writeAtomic(dir, name string, encode func(*bufio.Writer) error) error {
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := encode(w); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}

func encodeVectors(w *bufio.Writer, dim int, vectors [][]float32) error {
	if _, err := w.Write(vectorsMagic[:]); err != nil {
		return err
	}
	header := []any{codecVersion, uint32(dim), uint32(len(vectors))}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	for _, vec := range vectors {
		if err := binary.Write(w, binary.LittleEndian, vec); err != nil {
			return err
		}
	}
	return nil
}

func encodeTombstones(w *bufio.Writer, positions []uint32) error {
	if _, err := w.Write(tombstonesMagic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, codecVersion); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(positions))); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, positions)
}

func readVectors(path string, dim int) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: vectors header: %v", ErrCorruptArtifact, err)
	}
	if magic != vectorsMagic {
		return nil, fmt.Errorf("%w: bad vectors magic %q", ErrCorruptArtifact, magic[:])
	}

	var version uint16
	var fileDim, count uint32
	if err := readHeader(r, &version, &fileDim, &count); err != nil {
		return nil, fmt.Errorf("%w: vectors header: %v", ErrCorruptArtifact, err)
	}
	if version != codecVersion {
		return nil, fmt.Errorf("%w: unsupported vectors version %d", ErrCorruptArtifact, version)
	}
	if int(fileDim) != dim {
		return nil, fmt.Errorf("%w: dimension %d on disk, %d configured", ErrCorruptArtifact, fileDim, dim)
	}

	// The count field is untrusted input; check it against the file size
	// before sizing the allocation.
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	const headerSize = 4 + 2 + 4 + 4
	want := headerSize + int64(count)*int64(dim)*4
	if info.Size() != want {
		return nil, fmt.Errorf("%w: vectors file is %d bytes, count %d implies %d", ErrCorruptArtifact, info.Size(), count, want)
	}

	flat := make([]float32, int(count)*dim)
	if err := binary.Read(r, binary.LittleEndian, flat); err != nil {
		return nil, fmt.Errorf("%w: truncated vector block: %v", ErrCorruptArtifact, err)
	}

	vectors := make([][]float32, count)
	for i := range vectors {
		vectors[i] = flat[i*dim : (i+1)*dim : (i+1)*dim]
	}
	return vectors, nil
}

func readTombstones(path string, total int) (map[int]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[int]struct{}), nil
		}
		return nil, err
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: tombstones header: %v", ErrCorruptArtifact, err)
	}
	if magic != tombstonesMagic {
		return nil, fmt.Errorf("%w: bad tombstones magic %q", ErrCorruptArtifact, magic[:])
	}

	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("%w: tombstones header: %v", ErrCorruptArtifact, err)
	}
	if version != codecVersion {
		return nil, fmt.Errorf("%w: unsupported tombstones version %d", ErrCorruptArtifact, version)
	}
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: tombstones header: %v", ErrCorruptArtifact, err)
	}

	// Untrusted count; check against the file size before allocating.
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	const headerSize = 4 + 2 + 4
	want := headerSize + int64(count)*4
	if info.Size() != want {
		return nil, fmt.Errorf("%w: tombstones file is %d bytes, count %d implies %d", ErrCorruptArtifact, info.Size(), count, want)
	}

	positions := make([]uint32, count)
	if err := binary.Read(r, binary.LittleEndian, positions); err != nil {
		return nil, fmt.Errorf("%w: truncated tombstone block: %v", ErrCorruptArtifact, err)
	}

	tombstones := make(map[int]struct{}, count)
	for _, pos := range positions {
		if int(pos) >= total {
			return nil, fmt.Errorf("%w: tombstone position %d out of range [0, %d)", ErrCorruptArtifact, pos, total)
		}
		tombstones[int(pos)] = struct{}{}
	}
	return tombstones, nil
}

func readHeader(r *bufio.Reader, version *uint16, fields ...*uint32) error {
	if err := binary.Read(r, binary.LittleEndian, version); err != nil {
		return err
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}
