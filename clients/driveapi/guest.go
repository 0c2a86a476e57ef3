package driveapi

import (
	"context"
	"time"
)

// GuestSession is the server's representation of a guest session.
type GuestSession struct {
	SessionID      string    `json:"sessionId"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	ExtensionCount int       `json:"extensionCount"`
	MaxExtensions  int       `json:"maxExtensions"`
	RemainingMs    int64     `json:"remainingMs"`
	IsValid        bool      `json:"isValid"`
}

// GuestStatusResponse is the authoritative session state returned by the
// status endpoint. RemainingMs is computed server-side at response time.
type GuestStatusResponse struct {
	RemainingMs    int64     `json:"remainingMs"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	ExtensionCount int       `json:"extensionCount"`
	MaxExtensions  int       `json:"maxExtensions"`
	CanExtend      bool      `json:"canExtend"`
	IsValid        bool      `json:"isValid"`
}

// ExtendResponse is returned after a successful session extension.
type ExtendResponse struct {
	RemainingMs    int64     `json:"remainingMs"`
	ExpiresAt      time.Time `json:"expiresAt"`
	ExtensionCount int       `json:"extensionCount"`
}

// GuestStatus fetches the authoritative state of the current guest session.
func (c *Client) GuestStatus(ctx context.Context) (*GuestStatusResponse, error) {
	var out GuestStatusResponse
	if err := c.get(ctx, EndpointGuestStatus, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExtendGuestSession asks the server to extend the current session by its
// fixed increment. The server enforces the extension ceiling.
func (c *Client) ExtendGuestSession(ctx context.Context) (*ExtendResponse, error) {
	var out ExtendResponse
	if err := c.post(ctx, EndpointGuestExtend, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type resumeRequest struct {
	SessionID string `json:"sessionId"`
}

// ResumeGuestSession validates and re-adopts a previously issued session.
func (c *Client) ResumeGuestSession(ctx context.Context, sessionID string) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.post(ctx, EndpointGuestResume, resumeRequest{SessionID: sessionID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type createGuestRequest struct {
	PriorSessionID string `json:"priorSessionId,omitempty"`
}

// CreateGuestSession starts a fresh guest session. A prior session ID may be
// passed so the server can clean up its leftovers.
func (c *Client) CreateGuestSession(ctx context.Context, priorSessionID string) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.post(ctx, EndpointGuestSession, createGuestRequest{PriorSessionID: priorSessionID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConvertRequest carries the profile fields for upgrading a guest to a
// permanent account.
type ConvertRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ConvertResponse is returned after a successful guest-to-user conversion.
type ConvertResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// ConvertGuestToUser transforms the guest identity into a full account.
func (c *Client) ConvertGuestToUser(ctx context.Context, req ConvertRequest) (*ConvertResponse, error) {
	var out ConvertResponse
	if err := c.post(ctx, EndpointGuestConvert, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
