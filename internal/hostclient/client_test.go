package hostclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v73/github"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diffsentry/pkg/models"
)

func newStubHost(t *testing.T, handler http.Handler) *githubHost {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	gh := github.NewClient(srv.Client())
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	gh.BaseURL = base

	return &githubHost{client: gh, logger: zerolog.Nop()}
}

func stubPR() models.PullRequest {
	return models.PullRequest{Owner: "acme", Repo: "widgets", Number: 3, HeadSHA: "abc123", InstallationID: 42}
}

func TestListChangedFilesMapsHostMetadata(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/3/files", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{"filename":"main.go","status":"modified","additions":2,"deletions":1,"patch":"@@ -1 +1,2 @@\n line\n+added"},
			{"filename":"new.go","status":"added","additions":5,"deletions":0}
		]`)
	})

	host := newStubHost(t, mux)

	metas, patches, err := host.listChangedFiles(context.Background(), stubPR())
	require.NoError(t, err)
	require.Len(t, metas, 2)

	assert.Equal(t, "main.go", metas[0].Filename)
	assert.Equal(t, models.StatusModified, metas[0].Status)
	assert.Equal(t, 2, metas[0].Additions)
	assert.Equal(t, 1, metas[0].Deletions)
	assert.Equal(t, models.StatusAdded, metas[1].Status)

	assert.Contains(t, patches, "main.go")
	assert.NotContains(t, patches, "new.go", "files without a patch get no patch entry")
}

func TestListChangedFilesPaginates(t *testing.T) {
	var host *githubHost
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/3/files", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"filename":"b.go","status":"modified","additions":1,"deletions":0}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%srepos/acme/widgets/pulls/3/files?page=2>; rel="next"`, host.client.BaseURL))
		fmt.Fprint(w, `[{"filename":"a.go","status":"modified","additions":1,"deletions":0}]`)
	})

	host = newStubHost(t, mux)

	metas, _, err := host.listChangedFiles(context.Background(), stubPR())
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "a.go", metas[0].Filename)
	assert.Equal(t, "b.go", metas[1].Filename)
}

func TestFetchPullContext(t *testing.T) {
	const rawDiff = "diff --git a/main.go b/main.go\n@@ -1 +1,2 @@\n line\n+added\n"

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/3", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept"), "diff")
		fmt.Fprint(w, rawDiff)
	})
	mux.HandleFunc("/repos/acme/widgets/pulls/3/files", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"filename":"main.go","status":"modified","additions":1,"deletions":0,"patch":"@@ -1 +1,2 @@\n line\n+added"}]`)
	})

	host := newStubHost(t, mux)

	pc, err := host.FetchPullContext(context.Background(), stubPR())
	require.NoError(t, err)
	assert.Equal(t, rawDiff, pc.Diff)
	require.Len(t, pc.Files, 1)
	assert.Equal(t, models.StatusModified, pc.Files[0].Status)
	assert.Contains(t, pc.Patches, "main.go")
}

func TestFetchPullContextFailsWhenEitherCallFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/3", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "diff --git a/a b/a\n")
	})
	mux.HandleFunc("/repos/acme/widgets/pulls/3/files", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	host := newStubHost(t, mux)

	_, err := host.FetchPullContext(context.Background(), stubPR())
	assert.ErrorContains(t, err, "failed to list changed files")
}
