// Package graph is a thin client for a Graph-style page API: resolving the
// managed page, listing posts and comments, checking for existing replies,
// and publishing posts and replies.
//
// All calls are blocking request/response with a per-call timeout. Errors
// are returned honestly; degrade-and-continue policies live in the callers.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNoPage is returned by ResolvePage when the access token grants no
// manageable page. Callers treat it as a configuration error.
var ErrNoPage = errors.New("no manageable page for this access token")

const (
	listTimeout  = 10 * time.Second
	writeTimeout = 15 * time.Second
)

// Client talks to the graph API. baseURL is the versioned API root, e.g.
// "https://graph.facebook.com/v19.0".
type Client struct {
	baseURL     string
	accessToken string
	// pageID optionally pins which of the token's pages to resolve.
	pageID     string
	httpClient *http.Client
}

// NewClient creates a Client for the given API root and user access token.
// pageID may be empty, in which case the first manageable page is used.
func NewClient(baseURL, accessToken, pageID string) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		pageID:      pageID,
		httpClient:  &http.Client{},
	}
}

// apiError mirrors the graph error envelope.
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

type accountsResponse struct {
	Data []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		AccessToken string `json:"access_token"`
	} `json:"data"`
}

// ResolvePage resolves the page identity from /me/accounts using the user
// access token. When a page ID is pinned, that page must be among the
// token's accounts; otherwise the first account wins. Returns ErrNoPage
// when the token grants no usable page.
func (c *Client) ResolvePage(ctx context.Context) (Page, error) {
	if c.accessToken == "" {
		return Page{}, fmt.Errorf("resolving page: %w", ErrNoPage)
	}

	q := url.Values{}
	q.Set("access_token", c.accessToken)
	q.Set("fields", "id,name,access_token")

	var accounts accountsResponse
	if err := c.getJSON(ctx, "/me/accounts", q, &accounts); err != nil {
		return Page{}, fmt.Errorf("listing accounts: %w", err)
	}

	for _, a := range accounts.Data {
		if a.AccessToken == "" {
			continue
		}
		if c.pageID != "" && a.ID != c.pageID {
			continue
		}
		return Page{ID: a.ID, Token: a.AccessToken, Name: a.Name}, nil
	}
	return Page{}, ErrNoPage
}

type postsResponse struct {
	Data []struct {
		ID          string `json:"id"`
		Message     string `json:"message"`
		CreatedTime string `json:"created_time"`
	} `json:"data"`
}

// ListPosts returns up to limit most recent posts in remote order.
func (c *Client) ListPosts(ctx context.Context, page Page, limit int) ([]Post, error) {
	q := url.Values{}
	q.Set("access_token", page.Token)
	q.Set("fields", "id,message,created_time")
	q.Set("limit", strconv.Itoa(limit))

	var resp postsResponse
	if err := c.getJSON(ctx, "/"+page.ID+"/posts", q, &resp); err != nil {
		return nil, fmt.Errorf("listing posts for page %s: %w", page.ID, err)
	}

	posts := make([]Post, 0, len(resp.Data))
	for _, p := range resp.Data {
		posts = append(posts, Post{
			ID:          p.ID,
			Message:     p.Message,
			CreatedTime: parseGraphTime(p.CreatedTime),
		})
	}
	return posts, nil
}

type commentsResponse struct {
	Data []struct {
		ID   string `json:"id"`
		From struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"from"`
		Message     string `json:"message"`
		CreatedTime string `json:"created_time"`
	} `json:"data"`
}

// ListComments returns up to limit comments on the post in remote order,
// excluding comments authored by the page itself.
func (c *Client) ListComments(ctx context.Context, page Page, postID string, limit int) ([]Comment, error) {
	q := url.Values{}
	q.Set("access_token", page.Token)
	q.Set("fields", "id,from{id,name},message,created_time")
	q.Set("limit", strconv.Itoa(limit))

	var resp commentsResponse
	if err := c.getJSON(ctx, "/"+postID+"/comments", q, &resp); err != nil {
		return nil, fmt.Errorf("listing comments on post %s: %w", postID, err)
	}

	comments := make([]Comment, 0, len(resp.Data))
	for _, cm := range resp.Data {
		if cm.From.ID == page.ID {
			// Self-comments are never candidates.
			continue
		}
		comments = append(comments, Comment{
			ID:          cm.ID,
			AuthorID:    cm.From.ID,
			AuthorName:  cm.From.Name,
			Message:     cm.Message,
			CreatedTime: parseGraphTime(cm.CreatedTime),
		})
	}
	return comments, nil
}

type repliesResponse struct {
	Data []struct {
		From struct {
			ID string `json:"id"`
		} `json:"from"`
	} `json:"data"`
}

// HasPageReplied reports whether the page already has a reply under the
// given comment.
func (c *Client) HasPageReplied(ctx context.Context, page Page, commentID string) (bool, error) {
	q := url.Values{}
	q.Set("access_token", page.Token)
	q.Set("fields", "from{id}")
	q.Set("limit", "25")

	var resp repliesResponse
	if err := c.getJSON(ctx, "/"+commentID+"/comments", q, &resp); err != nil {
		return false, fmt.Errorf("listing replies on comment %s: %w", commentID, err)
	}

	for _, r := range resp.Data {
		if r.From.ID == page.ID {
			return true, nil
		}
	}
	return false, nil
}

type createdResponse struct {
	ID string `json:"id"`
}

// ReplyToComment posts a reply under the given comment and returns the new
// reply's id.
func (c *Client) ReplyToComment(ctx context.Context, page Page, commentID, text string) (string, error) {
	form := url.Values{}
	form.Set("access_token", page.Token)
	form.Set("message", text)

	var resp createdResponse
	if err := c.postForm(ctx, "/"+commentID+"/comments", form, &resp); err != nil {
		return "", fmt.Errorf("replying to comment %s: %w", commentID, err)
	}
	return resp.ID, nil
}

// PublishPost publishes a new post to the page feed and returns its id.
// linkURL may be empty.
func (c *Client) PublishPost(ctx context.Context, page Page, message, linkURL string) (string, error) {
	form := url.Values{}
	form.Set("access_token", page.Token)
	form.Set("message", message)
	if linkURL != "" {
		form.Set("link", linkURL)
	}

	var resp createdResponse
	if err := c.postForm(ctx, "/"+page.ID+"/feed", form, &resp); err != nil {
		return "", fmt.Errorf("publishing post to page %s: %w", page.ID, err)
	}
	return resp.ID, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		var ae apiError
		if json.Unmarshal(body, &ae) == nil && ae.Error.Message != "" {
			return fmt.Errorf("api error (status %d, code %d): %s", resp.StatusCode, ae.Error.Code, ae.Error.Message)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// parseGraphTime handles the API's "2006-01-02T15:04:05-0700" layout,
// falling back to RFC3339. A zero time is returned for anything else;
// timestamps are informational and never drive decisions.
func parseGraphTime(s string) time.Time {
	if t, err := time.Parse("2006-01-02T15:04:05-0700", s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
