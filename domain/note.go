package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SaveNote struct {
	UserId       uuid.UUID
	Message      string
	InReplyToURI string // URI of parent post (empty for top-level posts)
	RenoteOfURI  string // URI of the note this renotes (empty for a plain note)
	QuoteText    string // non-empty ⇒ quote renote; empty + RenoteOfURI set ⇒ pure renote (Announce)
}

// Note is a post: author, optional text, optional parent, optional renote
// target, addressed by Visibility, per spec.md §3.
type Note struct {
	Id        uuid.UUID
	CreatedBy string
	Message   string
	CreatedAt time.Time
	EditedAt  *time.Time // When the note was last edited (nil if never edited)
	// ActivityPub fields
	Visibility     string // "public", "unlisted" (Home), "followers", "direct" (Specified)
	InReplyToURI   string // URI of the note this is replying to
	RenoteOfURI    string // URI of the note this purely renotes (renote_of_uri column)
	QuoteURL       string // URI of the note a quote renote quotes (quote_url column), sent as quoteUrl
	ObjectURI      string // ActivityPub object URI
	ThreadId       uuid.UUID
	Federated      bool   // Whether to federate this note
	Sensitive      bool   // Contains sensitive content
	ContentWarning string // Content warning text
	// Engagement counters
	ReplyCount  int // Number of replies
	LikeCount   int // Number of reactions (incl. plain likes)
	BoostCount int // Number of renotes (pure + quote)
}

func (note *Note) ToString() string {
	return fmt.Sprintf("\n\tId: %s \n\tCreatedBy: %s \n\tMessage: %s \n\tCreatedAt: %s)", note.Id, note.CreatedBy, note.Message, note.CreatedAt)
}

// IsPureRenote reports whether this note is a boost with no added text —
// spec.md §3/§4.2: federates as Announce rather than Create.
func (note *Note) IsPureRenote() bool {
	return note.RenoteOfURI != "" && note.Message == ""
}

// HomePost represents a unified post in the home timeline (either local or remote)
type HomePost struct {
	ID         uuid.UUID
	Author     string // @user (local) or @user@domain (remote)
	Content    string
	Time       time.Time
	ObjectURI  string // ActivityPub object id (canonical URI, returns JSON)
	ObjectURL  string // ActivityPub object url (human-readable web UI link, preferred for display)
	IsLocal    bool      // true = local note, false = remote activity
	NoteID     uuid.UUID // only set for local posts (for editing/deleting)
	ReplyCount int       // number of replies to this post
	LikeCount  int       // number of reactions on this post
	BoostCount int       // number of renotes on this post
}

// NoteRevision is one prior version of a Note, written by updateNote
// before the row itself is mutated (spec.md §3 "edit history").
type NoteRevision struct {
	Id        uuid.UUID
	NoteId    uuid.UUID
	Message   string
	EditedAt  time.Time
}
