package storage

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	n, err := store.SaveStream("deposits/1/photo.png", bytes.NewReader([]byte("png-bytes")), 64)
	require.NoError(t, err)
	require.EqualValues(t, 9, n)

	f, err := store.Open("deposits/1/photo.png")
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, "png-bytes", string(body))

	require.NoError(t, store.Delete("deposits/1/photo.png"))
	_, err = store.Open("deposits/1/photo.png")
	require.Error(t, err)
}

func TestLocalStorageLimitsSize(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.SaveStream("big.bin", bytes.NewReader(make([]byte, 10)), 4)
	require.ErrorIs(t, err, ErrTooLarge)
	_, err = store.Open("big.bin")
	require.Error(t, err)
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("../escape.txt", []byte("x"))
	require.ErrorIs(t, err, ErrInvalidPath)
	_, err = store.Save("/etc/passwd", []byte("x"))
	require.ErrorIs(t, err, ErrInvalidPath)
}
