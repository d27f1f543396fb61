package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slunerd/internal/da"
	"slunerd/internal/utterance"
)

func TestReadTranscripts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "train.tsv")
	content := "# comment\n" +
		"hello there\thello()\n" +
		"\n" +
		"i want chinese food\tinform(food=\"chinese\")&request(phone)\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	utts, das, err := readTranscripts(path)
	require.NoError(t, err)
	require.Len(t, utts, 2)
	require.Len(t, das, 2)

	var found bool
	for id, act := range das {
		if act.Contains(da.NewDAI("inform", "food", "chinese")) {
			found = true
			assert.Equal(t, "i want chinese food", utts[id].String())
			assert.True(t, act.Contains(da.NewDAI("request", "phone", "")))
		}
	}
	assert.True(t, found, "inform act not parsed")
}

func TestReadTranscriptsMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.tsv")
	require.NoError(t, os.WriteFile(path, []byte("no tab here\n"), 0644))
	_, _, err := readTranscripts(path)
	assert.Error(t, err)
}

func TestLoadPreprocessor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.tsv")
	content := "CITY\tparis\tpariss;paris town\nFOOD\tchinese\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	p := loadPreprocessor(path)
	require.NotNil(t, p)

	_, labels := p.ValuesToCategoryLabelsInUtterance(
		p.TextNormalisation(utterance.New("go to paris town")))
	assert.Equal(t, "paris", labels["CITY"].Value)
	assert.Equal(t, "paris town", labels["CITY"].Surface)

	// Empty path disables preprocessing.
	assert.Nil(t, loadPreprocessor(""))
}
