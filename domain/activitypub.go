package domain

import (
	"github.com/google/uuid"
	"time"
)

// RemoteAccount represents a cached federated user: the storage form of
// an ActorCacheEntry (spec.md §3/§4.7).
type RemoteAccount struct {
	Id            uuid.UUID
	Username      string
	Domain        string
	ActorURI      string
	DisplayName   string
	Summary       string
	InboxURI      string
	SharedInbox   string
	OutboxURI     string
	PublicKeyPem  string
	AvatarURL     string
	Locked        bool
	LastFetchedAt time.Time
	// NegativeUntil is set when the last resolve attempt failed (404,
	// invalid body); while now < NegativeUntil, ActorCache returns the
	// failure without refetching. Zero value means "no negative cache".
	NegativeUntil time.Time
}

// SoftExpired reports whether the cached actor should be refreshed on next
// use but may still be served stale (spec.md §4.7 soft TTL).
func (r *RemoteAccount) SoftExpired(softTTL time.Duration) bool {
	return time.Since(r.LastFetchedAt) > softTTL
}

// HardExpired reports whether the cached actor is too stale to serve at
// all without a successful refetch (spec.md §4.7 hard TTL).
func (r *RemoteAccount) HardExpired(hardTTL time.Duration) bool {
	return time.Since(r.LastFetchedAt) > hardTTL
}

// Follow represents a follow relationship
type Follow struct {
	Id              uuid.UUID
	AccountId       uuid.UUID // Can be local or remote account
	TargetAccountId uuid.UUID // Can be local or remote account
	URI             string    // ActivityPub Follow activity URI (empty for local follows)
	CreatedAt       time.Time
	Accepted        bool
	IsLocal         bool // true if this is a local-only follow
}

// FollowRequest is a pending FollowEdge while the followee is locked
// (spec.md §3). Transitions: Pending → Accepted (FollowEdge created, row
// deleted) | Rejected (row deleted) | Cancelled (row deleted).
type FollowRequest struct {
	Id              uuid.UUID
	AccountId       uuid.UUID // follower
	TargetAccountId uuid.UUID // followee
	URI             string    // the inbound Follow activity URI, empty for local requests
	CreatedAt       time.Time
}

// Like represents a reaction on a note: (userId, noteId, emoji) per
// spec.md §3's Reaction entity, with Emoji defaulting to a plain thumbs-up
// so the pre-existing boolean "like" concept is the Emoji == DefaultReactionEmoji
// special case rather than a separate table.
type Like struct {
	Id        uuid.UUID
	AccountId uuid.UUID // Who liked (can be local or remote)
	NoteId    uuid.UUID // Which note was liked
	URI       string    // ActivityPub Like activity URI
	Emoji     string    // reaction emoji; "👍" for a plain favorite
	CreatedAt time.Time
}

// DefaultReactionEmoji is emitted unconditionally as both `content` and
// `_misskey_reaction` for a plain Like, per spec.md §9's resolved Open
// Question: the spec never suppresses either field for the default emoji.
const DefaultReactionEmoji = "👍"

// Boost represents a boost/reblog/announce on a note
type Boost struct {
	Id        uuid.UUID
	AccountId uuid.UUID // Who boosted (can be local or remote)
	NoteId    uuid.UUID // Which note was boosted
	URI       string    // ActivityPub Announce activity URI
	CreatedAt time.Time
}

// Activity represents an ActivityPub activity (for logging/deduplication)
type Activity struct {
	Id           uuid.UUID
	ActivityURI  string
	ActivityType string // Follow, Create, Like, Announce, Undo, etc.
	ActorURI     string
	ObjectURI    string
	RawJSON      string
	Processed    bool
	CreatedAt    time.Time
	Local        bool // true if originated from this server
	FromRelay    bool // true if forwarded by a relay
	LikeCount    int  // Denormalized like count
	BoostCount   int  // Denormalized boost count
}

// DeliveryQueueItem represents a DeliveryJob in the durable outbound
// queue (spec.md §3/§4.3).
type DeliveryQueueItem struct {
	Id                uuid.UUID
	InboxURI          string
	SigningAccountId  uuid.UUID // stamped by EnqueueDeliveryFor; the worker signs as the activity's actor
	ActivityJSON      string    // The complete activity to deliver
	Attempts          int
	NextRetryAt       time.Time
	CreatedAt         time.Time
	DeadLettered      bool // set once a failed attempt brings the count to delivery.maxAttempts
}

// ReplayToken is a seen-once marker for an inbound activity, keyed by
// activityURI with the body digest stored alongside (spec.md §3). Tokens
// are kept until PruneReplayTokens removes them.
type ReplayToken struct {
	ActivityURI string
	Digest      string
	SeenAt      time.Time
}

// NoteMention represents a @user@domain mention in a note
type NoteMention struct {
	Id                uuid.UUID
	NoteId            uuid.UUID
	MentionedActorURI string // The ActivityPub actor URI of the mentioned user
	MentionedUsername string // The username part (@username@domain -> username)
	MentionedDomain   string // The domain part (@username@domain -> domain)
	CreatedAt         time.Time
}

// Relay represents an ActivityPub relay subscription
type Relay struct {
	Id         uuid.UUID
	ActorURI   string // The relay's actor URI (e.g., https://relay.example.com/actor)
	InboxURI   string // The relay's inbox URI for delivering activities
	FollowURI  string // The URI of our Follow activity (needed for Undo)
	Name       string // Display name from relay actor profile
	Status     string // pending, active, failed
	Paused     bool   // true while the relay is paused
	CreatedAt  time.Time
	AcceptedAt *time.Time // When the relay accepted our Follow request
}
