package contentapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
)

// ListMyPvpLevels lists the levels authored by the session user
func (c *Client) ListMyPvpLevels(ctx context.Context, creds core.Credentials) ([]core.PvpLevel, error) {
	var levels []core.PvpLevel
	if err := c.do(ctx, http.MethodGet, "/pvp/levels/mine/", creds.Token, nil, nil, &levels); err != nil {
		return nil, err
	}
	return levels, nil
}

// ListPostedPvpLevels lists every posted level
func (c *Client) ListPostedPvpLevels(ctx context.Context, creds core.Credentials) ([]core.PvpLevel, error) {
	var levels []core.PvpLevel
	if err := c.do(ctx, http.MethodGet, "/pvp/levels/posted/", creds.Token, nil, nil, &levels); err != nil {
		return nil, err
	}
	return levels, nil
}

// CreatePvpLevel creates an unlisted level
func (c *Client) CreatePvpLevel(ctx context.Context, creds core.Credentials, in core.PvpLevelInput) (*core.PvpLevel, error) {
	var level core.PvpLevel
	if err := c.do(ctx, http.MethodPost, "/pvp/levels/", creds.Token, nil, in, &level); err != nil {
		return nil, err
	}
	return &level, nil
}

// DeletePvpLevel removes a level and its emails
func (c *Client) DeletePvpLevel(ctx context.Context, creds core.Credentials, levelID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/pvp/levels/%d/", levelID), creds.Token, nil, nil, nil)
}

// SetPvpVisibility posts or unlists a level
func (c *Client) SetPvpVisibility(ctx context.Context, creds core.Credentials, levelID int64, visibility core.Visibility) (*core.PvpLevel, error) {
	body := map[string]core.Visibility{"visibility": visibility}
	var level core.PvpLevel
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/pvp/levels/%d/publish/", levelID), creds.Token, nil, body, &level); err != nil {
		return nil, err
	}
	return &level, nil
}

// AddPvpEmail adds an email to an owned level
func (c *Client) AddPvpEmail(ctx context.Context, creds core.Credentials, levelID int64, in core.PvpEmailInput) (*core.PvpEmail, error) {
	var email core.PvpEmail
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/pvp/levels/%d/emails/", levelID), creds.Token, nil, in, &email); err != nil {
		return nil, err
	}
	return &email, nil
}

// ListPvpEmails lists the emails of an owned level
func (c *Client) ListPvpEmails(ctx context.Context, creds core.Credentials, levelID int64) ([]core.PvpEmail, error) {
	var emails []core.PvpEmail
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/pvp/levels/%d/emails/", levelID), creds.Token, nil, nil, &emails); err != nil {
		return nil, err
	}
	return emails, nil
}

// DeletePvpEmail removes one email from an owned level
func (c *Client) DeletePvpEmail(ctx context.Context, creds core.Credentials, levelID, emailID int64) error {
	path := fmt.Sprintf("/pvp/levels/%d/emails/%d/", levelID, emailID)
	return c.do(ctx, http.MethodDelete, path, creds.Token, nil, nil, nil)
}
