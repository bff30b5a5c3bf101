package core

// User is the authenticated identity behind a client.
type User struct {
	ID        string
	Name      string
	Role      string
	AvatarURL string
}

// Client is a chat participant as seen by the core layer.
// The transport writes to Commands and reads from Events; the hub closes Events
// once the client is unregistered.
type Client struct {
	ID       string
	Commands chan *Command
	Events   chan *Event

	// Owned by the hub goroutine.
	user  *User
	rooms map[string]struct{}
}

// NewClient constructs a client with initialized channels.
// user may be nil; the client then has to authenticate first.
func NewClient(id string, user *User) *Client {
	return &Client{
		ID:       id,
		Commands: make(chan *Command, 16),
		Events:   make(chan *Event, 64),
		user:     user,
		rooms:    make(map[string]struct{}),
	}
}
