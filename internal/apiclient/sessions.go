package apiclient

import (
	"context"
	"net/url"

	"github.com/competeiq/api/internal/model"
)

func (c *Client) ListSessions(ctx context.Context) ([]model.SessionRecord, error) {
	var out model.SessionListResponse
	if err := c.get(ctx, "list_sessions", "/api/sessions", &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// CreateSession saves a new session; the backend makes it the active one.
func (c *Client) CreateSession(ctx context.Context, req model.SessionCreateRequest) (*model.SessionRecord, error) {
	if err := c.checkInput("create_session", &req); err != nil {
		return nil, err
	}
	var out model.SessionRecord
	if err := c.post(ctx, "create_session", "/api/sessions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ActiveSession(ctx context.Context) (*model.SessionRecord, error) {
	var out model.SessionRecord
	if err := c.get(ctx, "active_session", "/api/sessions/active", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateSession(ctx context.Context, id string, req model.SessionUpdateRequest) (*model.SessionRecord, error) {
	if err := requireID("update_session", "id", id); err != nil {
		return nil, err
	}
	if err := c.checkInput("update_session", &req); err != nil {
		return nil, err
	}
	var out model.SessionRecord
	if err := c.put(ctx, "update_session", "/api/sessions/"+url.PathEscape(id), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ActivateSession marks a session active and deactivates the others.
func (c *Client) ActivateSession(ctx context.Context, id string) (*model.SessionRecord, error) {
	if err := requireID("activate_session", "id", id); err != nil {
		return nil, err
	}
	var out model.SessionRecord
	if err := c.post(ctx, "activate_session", "/api/sessions/"+url.PathEscape(id)+"/activate", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteSession(ctx context.Context, id string) error {
	if err := requireID("delete_session", "id", id); err != nil {
		return err
	}
	return c.delete(ctx, "delete_session", "/api/sessions/"+url.PathEscape(id))
}
