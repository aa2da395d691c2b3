//go:build unix

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/andrej220/synctity/pkg/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPreAndPost(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "profiles.yaml")
	code, _, _ := cli(t, "new", "-profiles", file, "-profile", "hooks", "-pre", "echo pre", "-post", "echo post")
	require.Equal(t, 0, code)

	reportFile := filepath.Join(dir, "report.json")
	code, out, errOut := cli(t, "run", "-profiles", file, "-profile", "hooks", "-report", reportFile)
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "echo pre\npre\nFinished (0)\necho post\npost\nFinished (0)\n", out)

	raw, err := os.ReadFile(reportFile)
	require.NoError(t, err)
	var rep report.Report
	require.NoError(t, json.Unmarshal(raw, &rep))
	assert.Equal(t, "hooks", rep.Profile)
	require.Len(t, rep.Entries, 2)
	assert.Equal(t, "echo post", rep.Entries[1].Command)

	// a reverse run skips the hooks and has nothing left to do
	code, out, _ = cli(t, "run", "-profiles", file, "-profile", "hooks", "-reverse")
	assert.Equal(t, 0, code)
	assert.Equal(t, "profile hooks has nothing to run\n", out)
}

func TestRunFailureExitStatus(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "profiles.yaml")
	code, _, _ := cli(t, "new", "-profiles", file, "-profile", "broken", "-pre", "exit 4", "-post", "echo still runs")
	require.Equal(t, 0, code)

	code, out, _ := cli(t, "run", "-profiles", file, "-profile", "broken", "-color=false")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "Finished (4)\nThere may have been an error with the transfer.\n")
	assert.Contains(t, out, "still runs\nFinished (0)\n")
}
