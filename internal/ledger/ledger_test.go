// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLedger_AppendAssignsMonotonicSeq(t *testing.T) {
	l, err := Open("")
	require.NoError(t, err)

	e1, err := l.Append("file.added", "main.go", nil)
	require.NoError(t, err)
	e2, err := l.Append("file.modified", "main.go", map[string]any{"hash": "abc"})
	require.NoError(t, err)

	require.Equal(t, uint64(1), e1.Seq)
	require.Equal(t, uint64(2), e2.Seq)
	require.NotEqual(t, e1.ID, e2.ID)
	require.Equal(t, uint64(2), l.Head())
}

func TestLedger_GetByID(t *testing.T) {
	l, err := Open("")
	require.NoError(t, err)

	e, err := l.Append("entity.created", "func:abc", nil)
	require.NoError(t, err)

	got, ok := l.Get(e.ID)
	require.True(t, ok)
	require.Equal(t, e.Seq, got.Seq)

	_, ok = l.Get("does-not-exist")
	require.False(t, ok)
}

func TestLedger_Since(t *testing.T) {
	l, err := Open("")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := l.Append("tick", "x", nil)
		require.NoError(t, err)
	}

	recent := l.Since(3)
	require.Len(t, recent, 2)
	require.Equal(t, uint64(4), recent[0].Seq)
	require.Equal(t, uint64(5), recent[1].Seq)
}

func TestLedger_PersistsToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.jsonl")

	l, err := Open(path)
	require.NoError(t, err)
	_, err = l.Append("file.added", "a.go", nil)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"kind":"file.added"`)

	l2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l2.Close())
}
