package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingBackend struct {
	*MemoryBackend
}

func (b *failingBackend) WriteU16(Key, uint16) error {
	return errors.New("media worn out")
}

func TestFileBackendReadWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thresholds.bin")
	backend := NewFileBackend(path)

	t.Run("missing image reads as not found", func(t *testing.T) {
		_, err := backend.ReadU16(MaxLight)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("written word survives a new backend", func(t *testing.T) {
		require.NoError(t, backend.WriteU16(MaxLight, 500))

		v, err := NewFileBackend(path).ReadU16(MaxLight)
		require.NoError(t, err)
		assert.Equal(t, uint16(500), v)
	})

	t.Run("word is little-endian at its address", func(t *testing.T) {
		require.NoError(t, backend.WriteU16(MaxDist, 0x1234))

		image, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Len(t, image, ImageSize)
		assert.Equal(t, []byte{0x34, 0x12}, image[10:12])
		assert.Equal(t, []byte{0xf4, 0x01}, image[6:8])
	})

	t.Run("unwritten key inside the image reads as not found", func(t *testing.T) {
		image, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, []byte{0xff, 0xff}, image[0:2])

		_, err = backend.ReadU16(MinTemp)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("erased word reads as not found", func(t *testing.T) {
		require.NoError(t, backend.WriteU16(MaxLight, Erased))
		_, err := backend.ReadU16(MaxLight)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStoreLoad(t *testing.T) {
	defaults := Thresholds{MinTemp: 15, MaxTemp: 30, MinLight: 10, MaxLight: 4000, MinDist: 10, MaxDist: 200}

	t.Run("empty backend yields defaults", func(t *testing.T) {
		store := NewStore(NewMemoryBackend())
		assert.Equal(t, defaults, store.Load(defaults))
		assert.False(t, store.Faulted())
	})

	t.Run("stored values win over defaults", func(t *testing.T) {
		store := NewStore(NewFileBackend(filepath.Join(t.TempDir(), "img")))
		require.NoError(t, store.Set(MaxLight, 500))
		require.NoError(t, store.Set(MinDist, 3))

		loaded := NewStore(store.backend).Load(defaults)
		assert.Equal(t, uint16(500), loaded.MaxLight)
		assert.Equal(t, uint16(3), loaded.MinDist)
		assert.Equal(t, defaults.MaxTemp, loaded.MaxTemp)
	})

	t.Run("single write keeps other defaults after reload", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "img")
		require.NoError(t, NewStore(NewFileBackend(path)).Set(MaxDist, 180))

		want := defaults
		want.MaxDist = 180
		assert.Equal(t, want, NewStore(NewFileBackend(path)).Load(defaults))
	})

	t.Run("missing keys are persisted with their default", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "img")
		store := NewStore(NewFileBackend(path))
		require.NoError(t, store.Set(MinTemp, 18))
		store.Load(defaults)

		backend := NewFileBackend(path)
		for _, k := range Keys[1:] {
			v, err := backend.ReadU16(k)
			require.NoError(t, err, k.String())
			assert.Equal(t, defaults.Get(k), v, k.String())
		}

		v, err := backend.ReadU16(MinTemp)
		require.NoError(t, err)
		assert.Equal(t, uint16(18), v)
	})
}

func TestStoreSet(t *testing.T) {
	t.Run("failed write marks store faulted", func(t *testing.T) {
		store := NewStore(&failingBackend{MemoryBackend: NewMemoryBackend()})

		err := store.Set(MinLight, 7)
		assert.Error(t, err)
		assert.True(t, store.Faulted())
	})

	t.Run("unknown key is rejected", func(t *testing.T) {
		store := NewStore(NewMemoryBackend())
		assert.Error(t, store.Set(Key(9), 1))
		_, err := store.Get(Key(9))
		assert.Error(t, err)
	})
}

func TestThresholds(t *testing.T) {
	var th Thresholds
	for i, k := range Keys {
		th.Set(k, uint16(i+1))
	}

	for i, k := range Keys {
		assert.Equal(t, uint16(i+1), th.Get(k), k.String())
	}

	t.Run("pairs", func(t *testing.T) {
		min, max := MaxLight.Pair()
		assert.Equal(t, MinLight, min)
		assert.Equal(t, MaxLight, max)
	})

	t.Run("inverted ranges are reported", func(t *testing.T) {
		th := Thresholds{MinDist: 300, MaxDist: 200, MinLight: 1, MaxLight: 2}
		assert.Equal(t, []Key{MinDist}, th.Inverted())
	})
}
