package datastore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type doc struct {
	Count int               `json:"count"`
	Tags  map[string]string `json:"tags"`
}

func newStore(t *testing.T, mutate ...func(*Config)) (*DataStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "store.json")
	cfg := DefaultConfig(path)
	cfg.AutoSaveInterval = 0
	for _, m := range mutate {
		m(cfg)
	}
	ds, err := NewWithConfig(cfg)
	require.NoError(t, err)
	return ds, path
}

func TestNew_CreatesEmptyFile(t *testing.T) {
	defer goleak.VerifyNone(t)

	ds, path := newStore(t)
	defer ds.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, "{}", string(data))
}

func TestNewWithConfig_Invalid(t *testing.T) {
	_, err := NewWithConfig(nil)
	assert.Error(t, err)

	_, err = NewWithConfig(&Config{})
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err = New(path)
	assert.Error(t, err)
}

func TestPutGetRoundTripsAcrossReopen(t *testing.T) {
	defer goleak.VerifyNone(t)

	ds, path := newStore(t)
	require.NoError(t, ds.Put("g1", doc{Count: 3, Tags: map[string]string{"up": "👍"}}))

	var got doc
	ok, err := ds.Get("g1", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, got.Count)

	ok, err = ds.Get("missing", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, ds.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	var again doc
	ok, err = reopened.Get("g1", &again)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "👍", again.Tags["up"])
	assert.Equal(t, []string{"g1"}, reopened.Keys())
}

func TestUpdate(t *testing.T) {
	ds, _ := newStore(t)
	defer ds.Close()

	for i := 0; i < 3; i++ {
		var d doc
		require.NoError(t, ds.Update("k", &d, func(bool) error {
			d.Count++
			return nil
		}))
	}

	var d doc
	_, err := ds.Get("k", &d)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Count)

	boom := errors.New("boom")
	var skipped doc
	err = ds.Update("k", &skipped, func(exists bool) error {
		assert.True(t, exists)
		skipped.Count = 100
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = ds.Get("k", &d)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Count, "a failed update must not be stored")
}

func TestClosedStoreRejectsWrites(t *testing.T) {
	ds, _ := newStore(t)
	require.NoError(t, ds.Close())
	require.NoError(t, ds.Close())

	assert.ErrorIs(t, ds.Put("k", 1), ErrClosed)
	_, err := ds.Get("k", new(int))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, ds.SaveToFile(), ErrClosed)
}

func TestSave_BackupsArePruned(t *testing.T) {
	ds, path := newStore(t, func(c *Config) { c.BackupCount = 2 })
	defer ds.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, ds.Put("n", i))
		require.NoError(t, ds.SaveToFile())
	}

	backups, err := filepath.Glob(path + ".backup.*")
	require.NoError(t, err)
	assert.Len(t, backups, 2)

	var onDisk map[string]json.RawMessage
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.JSONEq(t, "4", string(onDisk["n"]))
}

func TestSave_UnchangedDataSkipsWrite(t *testing.T) {
	ds, path := newStore(t, func(c *Config) { c.BackupCount = 0 })
	defer ds.Close()

	require.NoError(t, ds.Put("k", "v"))
	require.NoError(t, ds.SaveToFile())
	first, err := os.Stat(path)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, ds.SaveToFile())
	second, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, first.ModTime(), second.ModTime())
}

func TestAutoSave(t *testing.T) {
	defer goleak.VerifyNone(t)

	ds, path := newStore(t, func(c *Config) { c.AutoSaveInterval = 10 * time.Millisecond })
	defer ds.Close()

	require.NoError(t, ds.Put("auto", true))
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		return err == nil && json.Valid(data) && string(data) != "{}"
	}, time.Second, 10*time.Millisecond)
}
