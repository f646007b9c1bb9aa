package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/fyrsmithlabs/weaver/internal/toolproto"
)

const (
	// ProviderName is the name the provider registers under.
	ProviderName = "git"

	OpCreateBranch = "createBranch"
	OpDeleteBranch = "deleteBranch"
	OpRestoreFile  = "restoreFile"
)

// RegisterProvider registers the git provider and routes its calls to a
// local transport on the mux.
func RegisterProvider(registry *toolproto.Registry, mux *toolproto.TransportMux) error {
	if err := registry.Register(toolproto.NewProvider(ProviderName, "local",
		OpCreateBranch, OpDeleteBranch, OpRestoreFile)); err != nil {
		return err
	}
	mux.Handle(ProviderName, NewTransport())
	return nil
}

// Transport executes git operations against local working copies. Failures
// here are deterministic (bad path, missing branch), so every refusal is a
// wire-level rejection rather than a retryable transport error.
type Transport struct{}

// NewTransport creates the local git transport.
func NewTransport() *Transport {
	return &Transport{}
}

// RoundTrip implements toolproto.Transport.
func (t *Transport) RoundTrip(ctx context.Context, _ *toolproto.Provider, req toolproto.Request) (toolproto.Response, error) {
	if err := ctx.Err(); err != nil {
		return toolproto.Response{}, err
	}

	switch req.Operation {
	case OpCreateBranch:
		return t.createBranch(req.Parameters)
	case OpDeleteBranch:
		return t.deleteBranch(req.Parameters)
	case OpRestoreFile:
		return t.restoreFile(req.Parameters)
	default:
		return toolproto.Response{
			Status:  toolproto.StatusError,
			Kind:    string(toolproto.ErrorInvalidOperation),
			Message: fmt.Sprintf("unsupported operation: %s", req.Operation),
		}, nil
	}
}

// createBranch creates a branch at HEAD and checks it out.
func (t *Transport) createBranch(params map[string]any) (toolproto.Response, error) {
	repo, wt, resp := openWorktree(params)
	if resp != nil {
		return *resp, nil
	}
	branch, resp := requireParam(params, "branch")
	if resp != nil {
		return *resp, nil
	}

	head, err := repo.Head()
	if err != nil {
		return reject(fmt.Sprintf("resolving HEAD: %v", err)), nil
	}

	refName := plumbing.NewBranchReferenceName(branch)
	if _, err := repo.Reference(refName, false); err == nil {
		return reject(fmt.Sprintf("branch %q already exists", branch)), nil
	}

	if err := wt.Checkout(&gogit.CheckoutOptions{
		Branch: refName,
		Create: true,
		Hash:   head.Hash(),
		Keep:   true,
	}); err != nil {
		return reject(fmt.Sprintf("creating branch %q: %v", branch, err)), nil
	}

	return ok(map[string]any{
		"branch":      branch,
		"base_commit": head.Hash().String(),
	}), nil
}

// deleteBranch removes a branch, detaching HEAD first when the branch is
// checked out so the reference can be dropped.
func (t *Transport) deleteBranch(params map[string]any) (toolproto.Response, error) {
	repo, wt, resp := openWorktree(params)
	if resp != nil {
		return *resp, nil
	}
	branch, resp := requireParam(params, "branch")
	if resp != nil {
		return *resp, nil
	}

	refName := plumbing.NewBranchReferenceName(branch)
	ref, err := repo.Reference(refName, false)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			// Deleting an absent branch is a no-op so compensations
			// stay idempotent.
			return ok(map[string]any{"branch": branch, "deleted": false}), nil
		}
		return reject(fmt.Sprintf("resolving branch %q: %v", branch, err)), nil
	}

	head, err := repo.Head()
	if err == nil && head.Name() == refName {
		if err := wt.Checkout(&gogit.CheckoutOptions{Hash: ref.Hash()}); err != nil {
			return reject(fmt.Sprintf("detaching from branch %q: %v", branch, err)), nil
		}
	}

	if err := repo.Storer.RemoveReference(refName); err != nil {
		return reject(fmt.Sprintf("deleting branch %q: %v", branch, err)), nil
	}

	return ok(map[string]any{"branch": branch, "deleted": true}), nil
}

// restoreFile rewrites a file from its HEAD blob, undoing local edits.
func (t *Transport) restoreFile(params map[string]any) (toolproto.Response, error) {
	repo, _, resp := openWorktree(params)
	if resp != nil {
		return *resp, nil
	}
	file, resp := requireParam(params, "file")
	if resp != nil {
		return *resp, nil
	}
	path, _ := params["path"].(string)

	head, err := repo.Head()
	if err != nil {
		return reject(fmt.Sprintf("resolving HEAD: %v", err)), nil
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return reject(fmt.Sprintf("loading HEAD commit: %v", err)), nil
	}

	blob, err := commit.File(file)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			// The file did not exist at HEAD; restoring means removing it.
			if err := os.Remove(filepath.Join(path, file)); err != nil && !os.IsNotExist(err) {
				return reject(fmt.Sprintf("removing %q: %v", file, err)), nil
			}
			return ok(map[string]any{"file": file, "removed": true}), nil
		}
		return reject(fmt.Sprintf("reading %q at HEAD: %v", file, err)), nil
	}

	contents, err := blob.Contents()
	if err != nil {
		return reject(fmt.Sprintf("reading %q at HEAD: %v", file, err)), nil
	}
	if err := os.WriteFile(filepath.Join(path, file), []byte(contents), 0o644); err != nil {
		return reject(fmt.Sprintf("writing %q: %v", file, err)), nil
	}

	return ok(map[string]any{"file": file, "restored": true}), nil
}

// openWorktree opens the repository at params["path"].
func openWorktree(params map[string]any) (*gogit.Repository, *gogit.Worktree, *toolproto.Response) {
	path, _ := params["path"].(string)
	if path == "" {
		r := reject("path is required")
		return nil, nil, &r
	}

	repo, err := gogit.PlainOpen(path)
	if err != nil {
		r := reject(fmt.Sprintf("opening repository at %q: %v", path, err))
		return nil, nil, &r
	}
	wt, err := repo.Worktree()
	if err != nil {
		r := reject(fmt.Sprintf("opening worktree at %q: %v", path, err))
		return nil, nil, &r
	}
	return repo, wt, nil
}

func requireParam(params map[string]any, key string) (string, *toolproto.Response) {
	v, _ := params[key].(string)
	if v == "" {
		r := reject(key + " is required")
		return "", &r
	}
	return v, nil
}

func ok(result map[string]any) toolproto.Response {
	return toolproto.Response{Status: toolproto.StatusOK, Result: result}
}

func reject(msg string) toolproto.Response {
	return toolproto.Response{
		Status:  toolproto.StatusError,
		Kind:    string(toolproto.ErrorRejected),
		Message: msg,
	}
}
