package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/weaver/internal/toolproto"
)

// initRepo creates a repository with one committed file.
func initRepo(t *testing.T) (string, *gogit.Repository) {
	t.Helper()
	dir := t.TempDir()

	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module acme/api\n"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("go.mod")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &gogit.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	return dir, repo
}

func roundTrip(t *testing.T, op string, params map[string]any) toolproto.Response {
	t.Helper()
	resp, err := NewTransport().RoundTrip(context.Background(), nil, toolproto.Request{
		Operation:  op,
		Parameters: params,
	})
	require.NoError(t, err)
	return resp
}

func TestCreateBranch(t *testing.T) {
	dir, repo := initRepo(t)

	resp := roundTrip(t, OpCreateBranch, map[string]any{"path": dir, "branch": "integrate-widgets"})
	require.True(t, resp.OK(), resp.Message)
	assert.Equal(t, "integrate-widgets", resp.Result["branch"])
	assert.NotEmpty(t, resp.Result["base_commit"])

	head, err := repo.Head()
	require.NoError(t, err)
	assert.Equal(t, plumbing.NewBranchReferenceName("integrate-widgets"), head.Name())
}

func TestCreateBranchAlreadyExists(t *testing.T) {
	dir, _ := initRepo(t)

	resp := roundTrip(t, OpCreateBranch, map[string]any{"path": dir, "branch": "feature"})
	require.True(t, resp.OK())

	resp = roundTrip(t, OpCreateBranch, map[string]any{"path": dir, "branch": "feature"})
	assert.False(t, resp.OK())
	assert.Equal(t, toolproto.ErrorRejected, resp.ErrorKind())
}

func TestDeleteBranch(t *testing.T) {
	dir, repo := initRepo(t)

	resp := roundTrip(t, OpCreateBranch, map[string]any{"path": dir, "branch": "feature"})
	require.True(t, resp.OK())

	// Deleting the checked-out branch detaches HEAD first.
	resp = roundTrip(t, OpDeleteBranch, map[string]any{"path": dir, "branch": "feature"})
	require.True(t, resp.OK(), resp.Message)
	assert.Equal(t, true, resp.Result["deleted"])

	_, err := repo.Reference(plumbing.NewBranchReferenceName("feature"), false)
	assert.ErrorIs(t, err, plumbing.ErrReferenceNotFound)
}

func TestDeleteBranchIdempotent(t *testing.T) {
	dir, _ := initRepo(t)

	resp := roundTrip(t, OpDeleteBranch, map[string]any{"path": dir, "branch": "never-existed"})
	require.True(t, resp.OK(), "deleting an absent branch is a no-op")
	assert.Equal(t, false, resp.Result["deleted"])
}

func TestRestoreFile(t *testing.T) {
	dir, _ := initRepo(t)

	// Local edit, then restore from HEAD.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module tampered\n"), 0o644))

	resp := roundTrip(t, OpRestoreFile, map[string]any{"path": dir, "file": "go.mod"})
	require.True(t, resp.OK(), resp.Message)

	content, err := os.ReadFile(filepath.Join(dir, "go.mod"))
	require.NoError(t, err)
	assert.Equal(t, "module acme/api\n", string(content))
}

func TestRestoreFileAbsentAtHead(t *testing.T) {
	dir, _ := initRepo(t)

	// A file created after the last commit is removed by restore.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "generated.go"), []byte("package api\n"), 0o644))

	resp := roundTrip(t, OpRestoreFile, map[string]any{"path": dir, "file": "generated.go"})
	require.True(t, resp.OK(), resp.Message)
	assert.Equal(t, true, resp.Result["removed"])

	_, err := os.Stat(filepath.Join(dir, "generated.go"))
	assert.True(t, os.IsNotExist(err))
}

func TestRejectsBadInput(t *testing.T) {
	dir, _ := initRepo(t)

	tests := []struct {
		name   string
		op     string
		params map[string]any
	}{
		{"missing path", OpCreateBranch, map[string]any{"branch": "x"}},
		{"missing branch", OpCreateBranch, map[string]any{"path": dir}},
		{"not a repository", OpCreateBranch, map[string]any{"path": t.TempDir(), "branch": "x"}},
		{"missing file", OpRestoreFile, map[string]any{"path": dir}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := roundTrip(t, tt.op, tt.params)
			assert.False(t, resp.OK())
			assert.Equal(t, toolproto.ErrorRejected, resp.ErrorKind())
		})
	}
}

func TestUnsupportedOperation(t *testing.T) {
	resp := roundTrip(t, "forcePush", map[string]any{"path": "x"})
	assert.False(t, resp.OK())
	assert.Equal(t, toolproto.ErrorInvalidOperation, resp.ErrorKind())
}

func TestRegisterProvider(t *testing.T) {
	registry := toolproto.NewRegistry()
	mux := toolproto.NewTransportMux(nil)

	require.NoError(t, RegisterProvider(registry, mux))

	p, ok := registry.Get(ProviderName)
	require.True(t, ok)
	assert.True(t, p.Supports(OpCreateBranch))
	assert.True(t, p.Supports(OpDeleteBranch))
	assert.True(t, p.Supports(OpRestoreFile))

	// Double registration is rejected.
	assert.Error(t, RegisterProvider(registry, mux))
}
