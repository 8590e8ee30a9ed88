package fanvue

import "time"

// User identifies a Fanvue user, either the account itself or a subscriber.
type User struct {
	UUID   string `json:"uuid"`
	Handle string `json:"handle"`
}

// Message is a single chat message fetched from the platform. Messages are
// transient; nothing but the id is ever stored locally.
type Message struct {
	ID             string
	ConversationID string
	SenderHandle   string
	Text           string
	SentAt         time.Time
	FromSelf       bool
	// History holds the conversation's recent turns oldest first, own
	// messages included, so reply generation can continue the exchange.
	History []Turn
}

// Turn is one entry of a conversation's recent history.
type Turn struct {
	FromSelf bool
	Text     string
}

// wireMessage mirrors the platform's message payload.
type wireMessage struct {
	UUID   string    `json:"uuid"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sentAt"`
	Sender User      `json:"sender"`
}

// pagination mirrors the platform's paging envelope.
type pagination struct {
	HasMore bool `json:"hasMore"`
}

type subscriberPage struct {
	Data       []User     `json:"data"`
	Pagination pagination `json:"pagination"`
}

type messagePage struct {
	Data       []wireMessage `json:"data"`
	Pagination pagination    `json:"pagination"`
}
