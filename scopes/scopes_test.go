package scopes_test

import (
	"testing"

	"github.com/coursebridge/launchgate/scopes"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("deduplicates and sorts", func(t *testing.T) {
		s := scopes.New(scopes.ProgressWrite, scopes.AttemptsWrite, scopes.ProgressWrite)
		require.Equal(t, scopes.Set{scopes.AttemptsWrite, scopes.ProgressWrite}, s)
	})

	t.Run("drops unknown scopes", func(t *testing.T) {
		s := scopes.New(scopes.Scope("root"), scopes.FilesRead)
		require.Equal(t, scopes.Set{scopes.FilesRead}, s)
	})

	t.Run("empty input yields empty set", func(t *testing.T) {
		require.Empty(t, scopes.New())
	})
}

func TestParse(t *testing.T) {
	s := scopes.Parse("progress.write  files.read unknown.scope")
	require.Equal(t, scopes.Set{scopes.FilesRead, scopes.ProgressWrite}, s)
	require.Equal(t, "files.read progress.write", s.String())
}

func TestContains(t *testing.T) {
	s := scopes.New(scopes.ProgressRead, scopes.ProgressWrite)
	require.True(t, s.Contains(scopes.ProgressWrite))
	require.False(t, s.Contains(scopes.AttemptsWrite))
	require.False(t, scopes.Set{}.Contains(scopes.ProgressRead))
}

func TestSubsetOf(t *testing.T) {
	all := scopes.New(scopes.All...)
	progress := scopes.New(scopes.ProgressRead, scopes.ProgressWrite)

	require.True(t, progress.SubsetOf(all))
	require.False(t, all.SubsetOf(progress))
	require.True(t, scopes.Set{}.SubsetOf(progress), "empty set is a subset of anything")
	require.True(t, progress.SubsetOf(progress))
}

func TestIntersect(t *testing.T) {
	a := scopes.New(scopes.ProgressWrite, scopes.AttemptsWrite, scopes.FilesRead)
	b := scopes.New(scopes.ProgressWrite, scopes.FilesRead, scopes.FilesWrite)

	got := a.Intersect(b)
	require.Equal(t, scopes.Set{scopes.FilesRead, scopes.ProgressWrite}, got)
	require.True(t, got.SubsetOf(a))
	require.True(t, got.SubsetOf(b))

	require.Empty(t, a.Intersect(scopes.Set{}))
}
