package identity

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

	"golang.org/x/sync/errgroup"

	"procuredata.io/internal/dataspace"
)

const (
	defaultPerPage = 200
	maxPages       = 500
	lookupWorkers  = 8
)

// AdminClient calls the identity provider's admin API (GoTrue-compatible) with
// the service key.
type AdminClient struct {
	baseURL    string
	serviceKey string
	http       *http.Client
	perPage    int
}

type AdminOption func(*AdminClient)

func WithHTTPClient(c *http.Client) AdminOption {
	return func(a *AdminClient) {
		if c != nil {
			a.http = c
		}
	}
}

func WithPageSize(n int) AdminOption {
	return func(a *AdminClient) {
		if n > 0 {
			a.perPage = n
		}
	}
}

func NewAdminClient(baseURL, serviceKey string, opts ...AdminOption) *AdminClient {
	c := &AdminClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		http:       &http.Client{Timeout: 15 * time.Second},
		perPage:    defaultPerPage,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Directory = (*AdminClient)(nil)

type adminUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	CreatedAt    time.Time      `json:"created_at"`
	LastSignInAt *time.Time     `json:"last_sign_in_at"`
	UserMetadata map[string]any `json:"user_metadata"`
}

func (u adminUser) toUser() User {
	out := User{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt, LastSignInAt: u.LastSignInAt}
	if name, ok := u.UserMetadata["full_name"].(string); ok {
		out.FullName = name
	}
	return out
}

// ListUsers pages through every account.
func (c *AdminClient) ListUsers(ctx context.Context) ([]User, error) {
	var out []User
	for page := 1; page <= maxPages; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(c.perPage))
		var body struct {
			Users []adminUser `json:"users"`
		}
		if err := c.do(ctx, http.MethodGet, "/auth/v1/admin/users?"+q.Encode(), &body); err != nil {
			return nil, err
		}
		for _, u := range body.Users {
			out = append(out, u.toUser())
		}
		if len(body.Users) < c.perPage {
			return out, nil
		}
	}
	return out, nil
}

// GetUsers fetches each id concurrently. Missing accounts are skipped; ids that
// fail for any other reason are reported in a *LookupError next to the users
// that did resolve.
func (c *AdminClient) GetUsers(ctx context.Context, ids []string) (map[string]User, error) {
	results := make([]*User, len(ids))
	failures := make([]error, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupWorkers)
	for i, id := range ids {
		if strings.TrimSpace(id) == "" {
			continue
		}
		g.Go(func() error {
			var u adminUser
			err := c.do(gctx, http.MethodGet, "/auth/v1/admin/users/"+url.PathEscape(id), &u)
			switch {
			case errors.Is(err, dataspace.ErrNotFound):
			case err != nil:
				failures[i] = err
			default:
				user := u.toUser()
				results[i] = &user
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]User, len(ids))
	var lookupErr *LookupError
	for i, u := range results {
		if u != nil {
			out[u.ID] = *u
		}
		if failures[i] != nil {
			if lookupErr == nil {
				lookupErr = &LookupError{Failed: make(map[string]error)}
			}
			lookupErr.Failed[ids[i]] = failures[i]
		}
	}
	if lookupErr != nil {
		return out, lookupErr
	}
	return out, nil
}

// DeleteUser removes the account.
func (c *AdminClient) DeleteUser(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: user id is required", dataspace.ErrInvalidRequest)
	}
	return c.do(ctx, http.MethodDelete, "/auth/v1/admin/users/"+url.PathEscape(id), nil)
}

func (c *AdminClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: identity %s %s: %v", dataspace.ErrUpstream, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: identity user", dataspace.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("%w: identity %s %s: status %d: %s", dataspace.ErrUpstream, method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode identity response: %v", dataspace.ErrUpstream, err)
	}
	return nil
}
