package driveapi

import "context"

// User is the account identity attached to auth responses.
type User struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	IsGuest bool   `json:"isGuest"`
}

// AuthResponse is returned by login, register, and the guest session
// create/resume endpoints. Session is nil for permanent accounts.
type AuthResponse struct {
	Token   string        `json:"token"`
	User    User          `json:"user"`
	Session *GuestSession `json:"session,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates a permanent account.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.post(ctx, EndpointLogin, loginRequest{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a permanent account.
func (c *Client) Register(ctx context.Context, name, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.post(ctx, EndpointRegister, registerRequest{Name: name, Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout invalidates the current token server-side. Errors are returned but
// callers typically proceed with local teardown regardless.
func (c *Client) Logout(ctx context.Context) error {
	return c.post(ctx, EndpointLogout, nil, nil)
}
