package domain

import "time"

// RequestContext is created by the auth guard for every request and handed to
// downstream handlers by pointer. It is never persisted.
type RequestContext struct {
	User       *User
	UserID     string
	Role       *Role
	RoleName   string
	MockedFrom string
	UserTrust  *int
	IP         string
	Payload    *SessionPayload
	Method     string
	Path       string

	// DroppedCredentials marks a guest admitted after its cookie token was
	// rejected; the transport expires the cookie.
	DroppedCredentials bool

	// Scratch is request-scoped storage for handlers and authorizers.
	Scratch    map[string]any
	SetCookies map[string]CookieToSet
}

type CookieToSet struct {
	Value    string
	HTTPOnly bool
	Secure   bool
	MaxAge   time.Duration
	Path     string
}

func NewRequestContext(ip, method, path string) *RequestContext {
	return &RequestContext{
		IP:         ip,
		Method:     method,
		Path:       path,
		Scratch:    make(map[string]any),
		SetCookies: make(map[string]CookieToSet),
	}
}

func (c *RequestContext) IsGuest() bool {
	return c.UserID == ""
}

func (c *RequestContext) SetTrust(v int) {
	c.UserTrust = &v
}

func (c *RequestContext) Trust() (int, bool) {
	if c.UserTrust == nil {
		return 0, false
	}
	return *c.UserTrust, true
}

func (c *RequestContext) SetCookie(name string, cookie CookieToSet) {
	if c.SetCookies == nil {
		c.SetCookies = make(map[string]CookieToSet)
	}
	c.SetCookies[name] = cookie
}
