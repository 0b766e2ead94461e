// Package hostclient wraps the GitHub API for the two host interactions the
// pipeline needs: fetching a pull request's diff with its file metadata, and
// posting the finished review back.
package hostclient

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v73/github"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/diffsentry/internal/diff"
	"github.com/diffsentry/pkg/models"
)

const (
	fetchTimeout = 30 * time.Second
	postTimeout  = 30 * time.Second

	filesPerPage = 100
)

// PullContext is everything the pipeline needs from the host before
// reviewing: the raw unified diff, per-file metadata, and the per-file
// patches used to validate comment line numbers on post.
type PullContext struct {
	Diff    string
	Files   []diff.FileMeta
	Patches map[string]string
}

// ReviewComment is a single line-anchored comment in a posted review.
type ReviewComment struct {
	Path string
	Line int
	Body string
}

// Client talks to one host on behalf of one installation token.
type Client interface {
	FetchPullContext(ctx context.Context, pr models.PullRequest) (*PullContext, error)
	PostReview(ctx context.Context, pr models.PullRequest, verb, body string, comments []ReviewComment, patches map[string]string) error
	PostComment(ctx context.Context, pr models.PullRequest, body string) error
}

type githubHost struct {
	client *github.Client
	logger zerolog.Logger
}

// NewForToken builds a Client authenticated with an installation token.
// baseURL is empty for github.com.
func NewForToken(ctx context.Context, token, baseURL string, logger zerolog.Logger) (Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))
	if baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid host base URL %s: %w", baseURL, err)
		}
	}
	return &githubHost{
		client: client,
		logger: logger.With().Str("component", "host_client").Logger(),
	}, nil
}

// FetchPullContext fetches the raw diff and the changed-file list in
// parallel. Both requests must succeed; a partial picture would make the
// sanitizer silently drop files.
func (g *githubHost) FetchPullContext(ctx context.Context, pr models.PullRequest) (*PullContext, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	type diffResult struct {
		raw string
		err error
	}
	type filesResult struct {
		files   []diff.FileMeta
		patches map[string]string
		err     error
	}

	diffCh := make(chan diffResult, 1)
	filesCh := make(chan filesResult, 1)

	go func() {
		raw, _, err := g.client.PullRequests.GetRaw(ctx, pr.Owner, pr.Repo, pr.Number, github.RawOptions{Type: github.Diff})
		diffCh <- diffResult{raw: raw, err: err}
	}()

	go func() {
		files, patches, err := g.listChangedFiles(ctx, pr)
		filesCh <- filesResult{files: files, patches: patches, err: err}
	}()

	dr := <-diffCh
	fr := <-filesCh

	if dr.err != nil {
		return nil, fmt.Errorf("failed to fetch diff for %s#%d: %w", pr.FullName(), pr.Number, dr.err)
	}
	if fr.err != nil {
		return nil, fmt.Errorf("failed to list changed files for %s#%d: %w", pr.FullName(), pr.Number, fr.err)
	}

	return &PullContext{Diff: dr.raw, Files: fr.files, Patches: fr.patches}, nil
}

func (g *githubHost) listChangedFiles(ctx context.Context, pr models.PullRequest) ([]diff.FileMeta, map[string]string, error) {
	var metas []diff.FileMeta
	patches := make(map[string]string)
	opts := &github.ListOptions{PerPage: filesPerPage}

	for {
		files, resp, err := g.client.PullRequests.ListFiles(ctx, pr.Owner, pr.Repo, pr.Number, opts)
		if err != nil {
			return nil, nil, err
		}
		for _, f := range files {
			metas = append(metas, diff.FileMeta{
				Filename:  f.GetFilename(),
				Status:    models.FileStatus(f.GetStatus()),
				Additions: f.GetAdditions(),
				Deletions: f.GetDeletions(),
			})
			if f.Patch != nil {
				patches[f.GetFilename()] = *f.Patch
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return metas, patches, nil
}

// PostReview publishes the review. Comments whose line does not exist on
// the new side of the file's patch are folded into the review body instead
// of being dropped, since the host rejects the whole review otherwise.
func (g *githubHost) PostReview(ctx context.Context, pr models.PullRequest, verb, body string, comments []ReviewComment, patches map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, postTimeout)
	defer cancel()

	anchored, orphaned := g.splitByCommentable(comments, patches)
	if len(orphaned) > 0 {
		body = body + "\n\n" + renderOrphaned(orphaned)
	}

	var ghComments []*github.DraftReviewComment
	for _, c := range anchored {
		ghComments = append(ghComments, &github.DraftReviewComment{
			Path: github.Ptr(c.Path),
			Line: github.Ptr(c.Line),
			Body: github.Ptr(c.Body),
		})
	}

	req := &github.PullRequestReviewRequest{
		CommitID: github.Ptr(pr.HeadSHA),
		Body:     github.Ptr(body),
		Event:    github.Ptr(verb),
		Comments: ghComments,
	}

	_, _, err := g.client.PullRequests.CreateReview(ctx, pr.Owner, pr.Repo, pr.Number, req)
	if err != nil {
		return fmt.Errorf("failed to create review on %s#%d: %w", pr.FullName(), pr.Number, err)
	}
	return nil
}

// PostComment posts a plain issue comment, used when there is nothing to
// review line by line.
func (g *githubHost) PostComment(ctx context.Context, pr models.PullRequest, body string) error {
	ctx, cancel := context.WithTimeout(ctx, postTimeout)
	defer cancel()

	_, _, err := g.client.Issues.CreateComment(ctx, pr.Owner, pr.Repo, pr.Number, &github.IssueComment{Body: github.Ptr(body)})
	if err != nil {
		return fmt.Errorf("failed to create comment on %s#%d: %w", pr.FullName(), pr.Number, err)
	}
	return nil
}

func (g *githubHost) splitByCommentable(comments []ReviewComment, patches map[string]string) (anchored, orphaned []ReviewComment) {
	validByFile := make(map[string]map[int]struct{})

	for _, c := range comments {
		valid, ok := validByFile[c.Path]
		if !ok {
			patch, havePatch := patches[c.Path]
			if havePatch {
				valid = ParseCommentableLines(patch, g.logger)
			} else {
				valid = map[int]struct{}{}
			}
			validByFile[c.Path] = valid
		}

		if _, ok := valid[c.Line]; ok {
			anchored = append(anchored, c)
		} else {
			g.logger.Debug().
				Str("file", c.Path).
				Int("line", c.Line).
				Msg("Comment line not present in diff, moving to review body")
			orphaned = append(orphaned, c)
		}
	}
	return anchored, orphaned
}

func renderOrphaned(orphaned []ReviewComment) string {
	out := "**Additional findings** (outside the changed lines):\n"
	for _, c := range orphaned {
		out += fmt.Sprintf("\n- `%s:%d`: %s", c.Path, c.Line, c.Body)
	}
	return out
}
