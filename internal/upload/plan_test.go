// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestGroupFilesBySizeMatchesScenario3 mirrors spec scenario 3 exactly:
// A=700,B=500,C=400,D=200 with max_size=1000 must pack into groups each
// <=1000 whose union is the full input set. Any valid packing qualifies.
func TestGroupFilesBySizeMatchesScenario3(t *testing.T) {
	files := []stagedFile{
		{Name: "A", Size: 700},
		{Name: "B", Size: 500},
		{Name: "C", Size: 400},
		{Name: "D", Size: 200},
	}
	groups := groupFilesBySize(files, 1000)
	assertValidPacking(t, files, groups, 1000)
}

// TestGroupFilesBySizeInvariantRandomized exercises the general
// invariant (scenario 3's universal quantifier) over several synthetic
// inputs and max_size choices.
func TestGroupFilesBySizeInvariantRandomized(t *testing.T) {
	cases := []struct {
		sizes   []int64
		maxSize int64
	}{
		{[]int64{100, 200, 300, 400, 500}, 500},
		{[]int64{1, 1, 1, 1, 1, 1, 1}, 3},
		{[]int64{999}, 999},
		{[]int64{10, 20, 30}, 1000},
	}
	for _, c := range cases {
		var files []stagedFile
		for i, sz := range c.sizes {
			files = append(files, stagedFile{Name: string(rune('a' + i)), Size: sz})
		}
		groups := groupFilesBySize(files, c.maxSize)
		assertValidPacking(t, files, groups, c.maxSize)
	}
}

func assertValidPacking(t *testing.T, files []stagedFile, groups []fileGroup, maxSize int64) {
	t.Helper()
	seen := map[string]bool{}
	for _, g := range groups {
		require.LessOrEqual(t, g.Size, maxSize)
		var sum int64
		for _, f := range g.Files {
			require.False(t, seen[f.Name], "file %s appears in more than one group", f.Name)
			seen[f.Name] = true
			sum += f.Size
		}
		require.Equal(t, g.Size, sum)
	}
	require.Len(t, seen, len(files))
	for _, f := range files {
		require.True(t, seen[f.Name])
	}
}

func TestScanStagingDirFiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "game.7z.002"), make([]byte, 10), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "game.7z.001"), make([]byte, 20), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0o644))

	files, err := scanStagingDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, "game.7z.001", files[0].Name)
	require.Equal(t, "game.7z.002", files[1].Name)
}

func TestMaterializeGroupsMovesFilesAndWritesGitFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "game.7z.001"), make([]byte, 10), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), []byte("{}"), 0o644))

	groups := []fileGroup{{Files: []stagedFile{{Name: "game.7z.001", Size: 10}}, Size: 10}}
	require.NoError(t, materializeGroups(dir, groups))

	shardDir := filepath.Join(dir, "main_1")
	require.FileExists(t, filepath.Join(shardDir, "game.7z.001"))
	require.FileExists(t, filepath.Join(shardDir, "manifest.json"))
	require.FileExists(t, filepath.Join(shardDir, ".gitignore"))
	require.FileExists(t, filepath.Join(shardDir, ".gitattributes"))

	ignore, err := os.ReadFile(filepath.Join(shardDir, ".gitignore"))
	require.NoError(t, err)
	require.Contains(t, string(ignore), sidecarFileName)
}
