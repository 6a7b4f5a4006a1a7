package preset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-midipreset/midi"
)

func samplePreset(id string) Preset {
	return Preset{
		ID:     id,
		Label:  "Preset " + id,
		Device: 1,
		Colour: "teal",
		Messages: []midi.Message{
			midi.ProgramChange{Channel: 0, Program: 10},
			midi.Delay{Millis: 50},
			midi.ControlChange{Channel: 0, Controller: 34, Value: 2},
			midi.Empty{},
		},
	}
}

// runStoreContract exercises the behaviour every Store must share.
func runStoreContract(t *testing.T, s Store) {
	ctx := context.Background()

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "missing"), ErrNotFound)

	require.NoError(t, s.Save(ctx, samplePreset("verse")))
	require.NoError(t, s.Save(ctx, samplePreset("chorus")))

	got, err := s.Get(ctx, "verse")
	require.NoError(t, err)
	assert.Equal(t, samplePreset("verse"), got)

	updated := samplePreset("verse")
	updated.Label = "Verse (clean)"
	updated.Messages = updated.Messages[:1]
	require.NoError(t, s.Save(ctx, updated))

	list, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "chorus", list[0].ID)
	assert.Equal(t, updated, list[1])

	require.NoError(t, s.Delete(ctx, "chorus"))
	list, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "verse", list[0].ID)

	assert.ErrorIs(t, s.Save(ctx, Preset{Label: "no id"}), ErrInvalidRecord)

	longest := samplePreset("longest")
	longest.Messages = []midi.Message{midi.Delay{Millis: midi.MaxDelayMillis}}
	require.NoError(t, s.Save(ctx, longest))
	got, err = s.Get(ctx, "longest")
	require.NoError(t, err)
	assert.Equal(t, longest, got)

	tooLong := samplePreset("too-long")
	tooLong.Messages = []midi.Message{midi.Delay{Millis: midi.MaxDelayMillis + 1}}
	err = s.Save(ctx, tooLong)
	assert.ErrorIs(t, err, ErrInvalidRecord)
	assert.ErrorIs(t, err, midi.ErrInvalidDelay)
	_, err = s.Get(ctx, "too-long")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreContract(t *testing.T) {
	runStoreContract(t, NewFileStore(filepath.Join(t.TempDir(), "sub", "presets.yaml")))
}

func TestFileStoreFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	s := NewFileStore(path)
	require.NoError(t, s.Save(context.Background(), samplePreset("verse")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "presets:")
	assert.Contains(t, text, "kind: program_change")
	assert.Contains(t, text, "channel: 1")
	assert.Contains(t, text, "ms: 50")
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("presets: [{kind: nope"), 0o644))

	_, err := NewFileStore(path).List(context.Background())
	assert.Error(t, err)
}

func TestRedisStoreContract(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(client, WithPrefix("test:"))
	defer store.Close()

	runStoreContract(t, store)
	assert.True(t, mr.Exists("test:data:verse"))
	assert.True(t, mr.Exists("test:index"))
}

func TestRedisStoreSkipsDanglingIndex(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	store := NewRedisStore(mr.Addr(), "", 0)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, samplePreset("verse")))
	mr.Del(DefaultRedisPrefix + "data:verse")

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()

	multi := filepath.Join(dir, "multi.yaml")
	require.NoError(t, os.WriteFile(multi, []byte(`
presets:
  - id: a
    label: A
    device: 0
    messages:
      - {kind: program_change, channel: 1, program: 1}
  - label: Second Song
    device: 2
    messages: []
`), 0o644))

	ps, err := ReadFile(multi)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, "a", ps[0].ID)
	assert.Equal(t, "second-song", ps[1].ID)
	assert.Equal(t, DefaultColour, ps[1].Colour)

	single := filepath.Join(dir, "single.json")
	require.NoError(t, os.WriteFile(single, []byte(`{"id":"solo","label":"Solo","device":1,"messages":[{"kind":"delay","ms":10}]}`), 0o644))

	ps, err = ReadFile(single)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, []midi.Message{midi.Delay{Millis: 10}}, ps[0].Messages)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("foo: bar\n"), 0o644))
	_, err = ReadFile(empty)
	assert.ErrorIs(t, err, ErrInvalidRecord)
}
