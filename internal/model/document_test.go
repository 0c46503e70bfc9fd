package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSourceDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 body"), 0o644))

	doc, err := NewSourceDocument(path)
	require.NoError(t, err)
	assert.Equal(t, path, doc.Path)
	assert.Equal(t, int64(13), doc.Size)
	assert.Zero(t, doc.PageCount)

	withPages := doc.WithPageCount(4)
	assert.Equal(t, 4, withPages.PageCount)
	assert.Zero(t, doc.PageCount)
}

func TestNewSourceDocument_Missing(t *testing.T) {
	_, err := NewSourceDocument(filepath.Join(t.TempDir(), "missing.pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stat")
}

func TestNewSourceDocument_Directory(t *testing.T) {
	_, err := NewSourceDocument(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a regular file")
}

func TestParseDocumentMeta(t *testing.T) {
	t.Parallel()

	meta := ParseDocumentMeta("/data/cadernos/TJSP_2025-11-13_D.pdf")
	assert.Equal(t, "TJSP", meta.Tribunal)
	assert.Equal(t, time.Date(2025, 11, 13, 0, 0, 0, 0, time.UTC), meta.PublishedOn)
	assert.Equal(t, "D", meta.Edition)
	assert.True(t, meta.Known)
}

func TestParseDocumentMeta_UnregisteredTribunal(t *testing.T) {
	t.Parallel()

	meta := ParseDocumentMeta("XPTO_2025-01-02_E.pdf")
	assert.Equal(t, "XPTO", meta.Tribunal)
	assert.Equal(t, "E", meta.Edition)
	assert.False(t, meta.Known)
}

func TestParseDocumentMeta_Unknown(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"caderno.pdf", "TJSP_2025-13-45_D.pdf", ""} {
		meta := ParseDocumentMeta(name)
		assert.Equal(t, UnknownTribunal, meta.Tribunal, name)
		assert.Equal(t, UnknownEdition, meta.Edition, name)
		assert.True(t, meta.PublishedOn.IsZero(), name)
		assert.False(t, meta.Known, name)
	}
}

func TestTribunals_Registry(t *testing.T) {
	t.Parallel()

	assert.Len(t, Tribunals(), 65)
	assert.Len(t, Tribunals(TribunalSuperior), 5)
	assert.Len(t, Tribunals(TribunalState), 27)
	assert.Len(t, Tribunals(TribunalFederal), 6)
	assert.Len(t, Tribunals(TribunalLabor), 24)
	assert.Len(t, Tribunals(TribunalMilitary), 3)
	assert.Len(t, Tribunals(TribunalFederal, TribunalMilitary), 9)

	tj, ok := LookupTribunal(" tjsp ")
	require.True(t, ok)
	assert.Equal(t, TribunalState, tj.Kind)
	assert.Equal(t, "Tribunal de Justiça de São Paulo", tj.Name)

	_, ok = LookupTribunal("TJXX")
	assert.False(t, ok)

	all := Tribunals()
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Code, all[i].Code)
	}
}
