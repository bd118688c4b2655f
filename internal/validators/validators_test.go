package validators

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clawd-io/clawd/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(context.Background(), filepath.Join(dir, "clawd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestDetectLanguageFindsGoMod(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module x\n"), 0644))
	require.Equal(t, "go", DetectLanguage(dir))
}

func TestDetectLanguageReturnsEmptyForUnknownProject(t *testing.T) {
	require.Equal(t, "", DetectLanguage(t.TempDir()))
}

func TestRunPersistsOneRecordPerCommand(t *testing.T) {
	st := openTestStore(t)
	dir := t.TempDir()

	table := commandTable["go"]
	commandTable["go"] = [][]string{{"true"}, {"false"}}
	defer func() { commandTable["go"] = table }()

	runs, err := Run(context.Background(), st, dir, "go")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, 0, runs[0].ExitCode)
	require.Equal(t, 1, runs[1].ExitCode)

	history, err := History(context.Background(), st, dir, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
}

func TestRunReturnsNilForUnknownLanguage(t *testing.T) {
	st := openTestStore(t)
	runs, err := Run(context.Background(), st, t.TempDir(), "cobol")
	require.NoError(t, err)
	require.Nil(t, runs)
}
