package voices

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/espeech/espeech-api/internal/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func seedVoices(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	// preferred transcript name and wav outranks mp3
	writeFile(t, filepath.Join(root, "alice", "ref_text.txt"), "hello")
	writeFile(t, filepath.Join(root, "alice", "a_notes.txt"), "ignored")
	writeFile(t, filepath.Join(root, "alice", "clip.mp3"), "mp3")
	writeFile(t, filepath.Join(root, "alice", "clip.wav"), "wav")
	writeFile(t, filepath.Join(root, "alice", "meta.json"), `{"name":"Alice Liddell"}`)

	// first *.txt and toml metadata
	writeFile(t, filepath.Join(root, "bob", "b.txt"), "b")
	writeFile(t, filepath.Join(root, "bob", "a.txt"), "a")
	writeFile(t, filepath.Join(root, "bob", "voice.flac"), "flac")
	writeFile(t, filepath.Join(root, "bob", "meta.toml"), "name = \"Bob\"\n")

	// invalid metadata falls back to the id
	writeFile(t, filepath.Join(root, "carol", "t.txt"), "c")
	writeFile(t, filepath.Join(root, "carol", "c.ogg"), "ogg")
	writeFile(t, filepath.Join(root, "carol", "meta.json"), "{not json")

	// incomplete voices are skipped
	writeFile(t, filepath.Join(root, "noaudio", "ref_text.txt"), "x")
	writeFile(t, filepath.Join(root, "notext", "x.wav"), "x")
	writeFile(t, filepath.Join(root, "stray.wav"), "x")

	return root
}

func TestCatalog_List(t *testing.T) {
	cat := NewCatalog(CatalogOptions{Dir: seedVoices(t)})

	list, err := cat.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)

	assert.Equal(t, "alice", list[0].ID)
	assert.Equal(t, "Alice Liddell", list[0].Name)
	assert.Equal(t, "ref_text.txt", list[0].RefTextFile)
	assert.Equal(t, "clip.wav", list[0].RefAudioFile)

	assert.Equal(t, "bob", list[1].ID)
	assert.Equal(t, "Bob", list[1].Name)
	assert.Equal(t, "a.txt", list[1].RefTextFile)
	assert.Equal(t, "voice.flac", list[1].RefAudioFile)
	assert.Equal(t, "audio/flac", list[1].AudioMimeType())

	assert.Equal(t, "carol", list[2].Name)
}

func TestCatalog_GetUnknown(t *testing.T) {
	cat := NewCatalog(CatalogOptions{Dir: seedVoices(t)})

	v, err := cat.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.FileExists(t, v.RefAudioPath)

	_, err = cat.Get(context.Background(), "nobody")
	require.ErrorIs(t, err, data.ErrVoiceNotFound)
}

func TestCatalog_Refresh(t *testing.T) {
	root := seedVoices(t)
	cat := NewCatalog(CatalogOptions{Dir: root})

	list, err := cat.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)

	writeFile(t, filepath.Join(root, "dave", "ref_text.txt"), "d")
	writeFile(t, filepath.Join(root, "dave", "d.m4a"), "m4a")

	// cached until refreshed
	_, err = cat.Get(context.Background(), "dave")
	require.ErrorIs(t, err, data.ErrVoiceNotFound)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, cat.Refresh(context.Background()))
		}()
	}
	wg.Wait()

	v, err := cat.Get(context.Background(), "dave")
	require.NoError(t, err)
	assert.Equal(t, "audio/mp4", v.AudioMimeType())
}

func TestCatalog_MissingRoot(t *testing.T) {
	cat := NewCatalog(CatalogOptions{Dir: filepath.Join(t.TempDir(), "absent")})
	list, err := cat.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCatalog_ReturnsCopies(t *testing.T) {
	cat := NewCatalog(CatalogOptions{Dir: seedVoices(t)})
	v, err := cat.Get(context.Background(), "alice")
	require.NoError(t, err)
	v.Name = "mutated"

	again, err := cat.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", again.Name)
}
