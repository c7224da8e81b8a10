package config

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ImageSize is the size of the persistent image holding all six words.
const ImageSize = 12

// Erased is the word of a never-written slot, as on blank EEPROM. It reads
// back as ErrNotFound.
const Erased uint16 = 0xFFFF

// ErrNotFound is returned when the backend holds no value for a key yet.
var ErrNotFound = errors.New("config: value not found")

// Backend reads and writes 16-bit words by key.
type Backend interface {
	ReadU16(key Key) (uint16, error)
	WriteU16(key Key, value uint16) error
}

// FileBackend keeps the words little-endian at Key.Address in a single image file.
type FileBackend struct {
	path string
	mu   sync.Mutex
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: filepath.Clean(path)}
}

func (b *FileBackend) ReadU16(key Key) (uint16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.Open(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrNotFound
		}
		return 0, errors.Wrapf(err, "config: open %s", b.path)
	}
	defer f.Close()

	var word [2]byte
	if _, err := f.ReadAt(word[:], key.Address()); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, ErrNotFound
		}
		return 0, errors.Wrapf(err, "config: read %s", key)
	}

	v := binary.LittleEndian.Uint16(word[:])
	if v == Erased {
		return 0, ErrNotFound
	}

	return v, nil
}

func (b *FileBackend) WriteU16(key Key, value uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.OpenFile(b.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return errors.Wrapf(err, "config: open %s", b.path)
	}
	defer f.Close()

	if err := eraseTail(f); err != nil {
		return errors.Wrapf(err, "config: erase %s", b.path)
	}

	var word [2]byte
	binary.LittleEndian.PutUint16(word[:], value)
	if _, err := f.WriteAt(word[:], key.Address()); err != nil {
		return errors.Wrapf(err, "config: write %s", key)
	}

	return errors.Wrapf(f.Sync(), "config: sync %s", b.path)
}

// eraseTail fills the image up to ImageSize with erased words, so slots
// below a written key never read back as zero.
func eraseTail(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}

	size := info.Size()
	if size >= ImageSize {
		return nil
	}

	fill := make([]byte, ImageSize-size)
	for i := range fill {
		fill[i] = 0xFF
	}

	_, err = f.WriteAt(fill, size)
	return err
}

// MemoryBackend is a volatile backend for runs without a storage path.
type MemoryBackend struct {
	mu     sync.Mutex
	values map[Key]uint16
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: map[Key]uint16{}}
}

func (b *MemoryBackend) ReadU16(key Key) (uint16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	v, ok := b.values[key]
	if !ok {
		return 0, ErrNotFound
	}
	return v, nil
}

func (b *MemoryBackend) WriteU16(key Key, value uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.values[key] = value
	return nil
}

// Store is the write-through persistence layer for thresholds.
type Store struct {
	backend Backend
	faulted atomic.Bool
}

func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

func (s *Store) Get(key Key) (uint16, error) {
	if !key.Valid() {
		return 0, errors.Errorf("config: unknown key %d", uint8(key))
	}

	return s.backend.ReadU16(key)
}

// Set writes value through to the backend. A failed write marks the store
// as faulted; the caller keeps its in-memory copy.
func (s *Store) Set(key Key, value uint16) error {
	if !key.Valid() {
		return errors.Errorf("config: unknown key %d", uint8(key))
	}

	if err := s.backend.WriteU16(key, value); err != nil {
		s.faulted.Store(true)
		return errors.Wrapf(err, "config: %s=%d not persisted", key, value)
	}

	return nil
}

// Faulted reports whether any write failed since startup.
func (s *Store) Faulted() bool {
	return s.faulted.Load()
}

// Load reads every key, falling back to defaults for keys never written
// or unreadable. Defaults of keys never written are persisted, so the image
// is complete after the first boot.
func (s *Store) Load(defaults Thresholds) Thresholds {
	t := defaults
	for _, k := range Keys {
		v, err := s.Get(k)
		switch {
		case err == nil:
			t.Set(k, v)
		case errors.Is(err, ErrNotFound):
			logrus.Debugf("config: %s not stored, using default %d", k, defaults.Get(k))
			if err := s.Set(k, defaults.Get(k)); err != nil {
				logrus.Warnf("config: default %s not persisted: %s", k, err)
			}
		default:
			s.faulted.Store(true)
			logrus.Warnf("config: %s unreadable, using default %d: %s", k, defaults.Get(k), err)
		}
	}

	for _, k := range t.Inverted() {
		_, max := k.Pair()
		logrus.Warnf("config: %s=%d is above %s=%d", k, t.Get(k), max, t.Get(max))
	}

	return t
}
