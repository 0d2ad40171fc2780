package repository

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/carwatch/internal/models"
)

func TestNoteStore_ReadEmpty(t *testing.T) {
	store := NewNoteStore(t.TempDir())

	notes, err := store.Read("veh-1")
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestNoteStore_AppendAndDelete(t *testing.T) {
	dir := t.TempDir()
	store := NewNoteStore(dir)

	first, err := store.Append("veh-1", models.Note{Date: "2024-01-02", Note: "oil change", Odometer: 12000})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	_, err = store.Append("veh-1", models.Note{Date: "2024-03-04", Note: "tire rotation", Odometer: 15000})
	require.NoError(t, err)

	notes, err := store.Read("veh-1")
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "oil change", notes[0].Note)
	assert.Equal(t, "tire rotation", notes[1].Note)

	require.NoError(t, store.Delete("veh-1", 0))
	notes, err = store.Read("veh-1")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "tire rotation", notes[0].Note)

	_, err = os.Stat(filepath.Join(dir, "veh-1.json"))
	assert.NoError(t, err)
}

func TestNoteStore_DeleteOutOfRange(t *testing.T) {
	store := NewNoteStore(t.TempDir())
	_, err := store.Append("veh-1", models.Note{Date: "2024-01-02", Note: "wash", Odometer: 1})
	require.NoError(t, err)

	assert.ErrorIs(t, store.Delete("veh-1", 1), ErrNoteNotFound)
	assert.ErrorIs(t, store.Delete("veh-1", -1), ErrNoteNotFound)
}

func TestNoteStore_RejectsPathTraversal(t *testing.T) {
	store := NewNoteStore(t.TempDir())

	_, err := store.Read("../tokens")
	assert.ErrorIs(t, err, ErrInvalidVehicleID)

	_, err = store.Append("a/b", models.Note{})
	assert.ErrorIs(t, err, ErrInvalidVehicleID)
}
