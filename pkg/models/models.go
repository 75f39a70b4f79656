package models

// Message represents a single chat post from the relational store.
// Timestamps are epoch milliseconds, matching the source schema.
type Message struct {
	ID        string
	CreateAt  int64
	UserID    string
	ChannelID string
	RootID    string
	Text      string
}

// IsRoot reports whether the message heads its own thread.
// The store uses an empty RootId for root posts; this is the single
// place where that policy lives.
func (m Message) IsRoot() bool {
	return m.RootID == ""
}

// Channel represents a chat channel eligible for processing.
// Type is the single-letter channel kind code ("O" open, "P" private).
type Channel struct {
	ID          string
	Name        string
	DisplayName string
	Type        string
}

// Thread is a root post plus its replies. Posts holds the root first,
// followed by replies in ascending creation order.
type Thread struct {
	RootID string
	Posts  []Message
}

// Window is a half-open time interval [Start, End) in epoch milliseconds.
type Window struct {
	Start int64
	End   int64
}

// Contains reports whether ts falls inside the window.
func (w Window) Contains(ts int64) bool {
	return ts >= w.Start && ts < w.End
}

// WikiItem is one entry from the wiki content tree listing.
type WikiItem struct {
	ID            string
	Title         string
	Type          string
	Archived      bool
	ParentSpaceID string
}

// Crumb is one entry of a wiki item's ancestry breadcrumb,
// ordered root-first as returned by the content API.
type Crumb struct {
	ID    string
	Title string
}

// WikiDetail is the full detail record for a wiki item: ancestry,
// optional explicit parent, and the raw editor content tree.
type WikiDetail struct {
	ID          string
	Title       string
	ParentID    string
	Breadcrumbs []Crumb
	Content     []byte
}
