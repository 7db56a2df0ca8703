package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catchlight/catchlight/internal/dbsource"
	"github.com/catchlight/catchlight/internal/output"
)

type fakeAddressedSource struct {
	comments []dbsource.AddressedComment
}

func (f *fakeAddressedSource) FetchNewAddressed(_ context.Context, _ time.Time, _ int, _ []string) ([]dbsource.AddressedComment, error) {
	return f.comments, nil
}

func setupAddressedTest(t *testing.T) (*cobra.Command, string) {
	t.Helper()
	stateDir := t.TempDir()
	viper.Set("state_dir", stateDir)
	t.Cleanup(func() { viper.Set("state_dir", nil) })

	ui = output.New()
	addressedAllRepos = true
	t.Cleanup(func() { addressedAllRepos = false })

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	return cmd, filepath.Join(stateDir, "evaluated_comments.json")
}

func TestRunAddressedDryRunWritesNoState(t *testing.T) {
	cmd, stateFile := setupAddressedTest(t)
	dryRun = true
	t.Cleanup(func() { dryRun = false })

	src := &fakeAddressedSource{comments: []dbsource.AddressedComment{
		{Repo: "acme/widgets", PRNumber: 42, CommentID: "c1", Body: "Null check missing"},
	}}
	require.NoError(t, runAddressed(cmd, src))

	_, err := os.Stat(stateFile)
	assert.True(t, os.IsNotExist(err), "dry run must not write the evaluated set")
}

func TestRunAddressedNothingNewAdvancesLastCheck(t *testing.T) {
	cmd, stateFile := setupAddressedTest(t)

	require.NoError(t, runAddressed(cmd, &fakeAddressedSource{}))

	_, err := os.Stat(stateFile)
	assert.NoError(t, err, "a real run records the check even when nothing was found")
}
