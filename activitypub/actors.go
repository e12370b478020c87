package activitypub

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deemkeen/stegodon/domain"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// defaultHTTPClient is the default HTTP client for production use
var defaultHTTPClient HTTPClient = NewDefaultHTTPClient(10 * time.Second)

// actorFetchGroup collapses concurrent resolves of the same actor URI into
// a single outbound HTTP fetch.
var actorFetchGroup singleflight.Group

// negativeCacheTTL is how long a failed fetch suppresses re-fetching the
// same actor URI.
const negativeCacheTTL = 5 * time.Minute

// ActorResponse represents the JSON structure of an ActivityPub actor.
type ActorResponse struct {
	Context                   any    `json:"@context"`
	ID                        string `json:"id"`
	Type                      string `json:"type"`
	PreferredUsername         string `json:"preferredUsername"`
	Name                      string `json:"name"`
	Summary                   string `json:"summary"`
	Inbox                     string `json:"inbox"`
	Outbox                    string `json:"outbox"`
	ManuallyApprovesFollowers bool   `json:"manuallyApprovesFollowers"`
	Endpoints                 struct {
		SharedInbox string `json:"sharedInbox"`
	} `json:"endpoints"`
	Icon struct {
		Type      string `json:"type"`
		MediaType string `json:"mediaType"`
		URL       string `json:"url"`
	} `json:"icon"`
	PublicKey struct {
		ID           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
}

// FetchRemoteActor fetches an actor from a remote server and stores it in
// the cache. This is the production wrapper using the default HTTP client
// and database.
func FetchRemoteActor(actorURI string) (*domain.RemoteAccount, error) {
	return FetchRemoteActorWithDeps(actorURI, defaultHTTPClient, NewDBWrapper())
}

// FetchRemoteActorWithDeps fetches an actor from a remote server and stores
// it in the cache, single-flighted per actorURI so concurrent resolves for
// the same actor share one HTTP round trip.
func FetchRemoteActorWithDeps(actorURI string, client HTTPClient, database Database) (*domain.RemoteAccount, error) {
	v, err, _ := actorFetchGroup.Do(actorURI, func() (any, error) {
		return doFetchRemoteActor(actorURI, client, database)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.RemoteAccount), nil
}

func doFetchRemoteActor(actorURI string, client HTTPClient, database Database) (*domain.RemoteAccount, error) {
	req, err := http.NewRequest("GET", actorURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", "stegodon/1.0 ActivityPub")

	resp, err := client.Do(req)
	if err != nil {
		negativelyCacheActor(actorURI, database)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		negativelyCacheActor(actorURI, database)
		return nil, fmt.Errorf("actor fetch failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var actor ActorResponse
	if err := json.Unmarshal(body, &actor); err != nil {
		negativelyCacheActor(actorURI, database)
		return nil, fmt.Errorf("failed to parse actor JSON: %w", err)
	}

	if actor.ID == "" || actor.Inbox == "" || actor.PublicKey.PublicKeyPem == "" {
		negativelyCacheActor(actorURI, database)
		return nil, fmt.Errorf("actor missing required fields")
	}

	domainName, err := extractDomain(actor.ID)
	if err != nil {
		return nil, err
	}

	sharedInbox := actor.Endpoints.SharedInbox

	err, existingAcc := database.ReadRemoteAccountByURI(actor.ID)

	var remoteAcc *domain.RemoteAccount
	if err == nil && existingAcc != nil {
		remoteAcc = &domain.RemoteAccount{
			Id:            existingAcc.Id,
			Username:      actor.PreferredUsername,
			Domain:        domainName,
			ActorURI:      actor.ID,
			DisplayName:   actor.Name,
			Summary:       actor.Summary,
			InboxURI:      actor.Inbox,
			OutboxURI:     actor.Outbox,
			PublicKeyPem:  actor.PublicKey.PublicKeyPem,
			AvatarURL:     actor.Icon.URL,
			LastFetchedAt: time.Now(),
			SharedInbox:   sharedInbox,
			Locked:        actor.ManuallyApprovesFollowers,
		}
		if err := database.UpdateRemoteAccount(remoteAcc); err != nil {
			return nil, fmt.Errorf("failed to update remote account: %w", err)
		}
	} else {
		remoteAcc = &domain.RemoteAccount{
			Id:            uuid.New(),
			Username:      actor.PreferredUsername,
			Domain:        domainName,
			ActorURI:      actor.ID,
			DisplayName:   actor.Name,
			Summary:       actor.Summary,
			InboxURI:      actor.Inbox,
			OutboxURI:     actor.Outbox,
			PublicKeyPem:  actor.PublicKey.PublicKeyPem,
			AvatarURL:     actor.Icon.URL,
			LastFetchedAt: time.Now(),
			SharedInbox:   sharedInbox,
			Locked:        actor.ManuallyApprovesFollowers,
		}
		if err := database.CreateRemoteAccount(remoteAcc); err != nil {
			return nil, fmt.Errorf("failed to create remote account: %w", err)
		}
	}

	return remoteAcc, nil
}

// negativelyCacheActor stamps a failed actor's cache row (if any) with a
// short-lived NegativeUntil so repeated resolves of an unreachable or
// malformed actor don't hammer it every time.
func negativelyCacheActor(actorURI string, database Database) {
	err, cached := database.ReadRemoteAccountByURI(actorURI)
	if err != nil || cached == nil {
		return
	}
	cached.NegativeUntil = time.Now().Add(negativeCacheTTL)
	_ = database.UpdateRemoteAccount(cached)
}

// GetOrFetchActor returns an actor from cache, soft-refreshing or
// re-fetching as needed. Production wrapper using the default HTTP client
// and database.
func GetOrFetchActor(actorURI string) (*domain.RemoteAccount, error) {
	return GetOrFetchActorWithDeps(actorURI, defaultHTTPClient, NewDBWrapper(), 24*time.Hour, 7*24*time.Hour)
}

// GetOrFetchActorWithDeps returns an actor from cache or fetches fresh data,
// honoring soft/hard TTLs (spec.md §4.7):
//   - fresher than softTTL: return cache as-is
//   - between soft and hard TTL: return cache, but a background refresh may
//     be triggered by the caller (callers that need synchronous freshness
//     should just call FetchRemoteActorWithDeps directly)
//   - older than hardTTL, or never cached: fetch synchronously
//   - within the negative-cache window: fail fast without a network call
func GetOrFetchActorWithDeps(actorURI string, client HTTPClient, database Database, softTTL, hardTTL time.Duration) (*domain.RemoteAccount, error) {
	err, cached := database.ReadRemoteAccountByURI(actorURI)
	if err == nil && cached != nil {
		if !cached.NegativeUntil.IsZero() && time.Now().Before(cached.NegativeUntil) {
			return nil, fmt.Errorf("actor %s is negatively cached until %s", actorURI, cached.NegativeUntil)
		}
		if !cached.SoftExpired(softTTL) {
			return cached, nil
		}
		if !cached.HardExpired(hardTTL) {
			return cached, nil
		}
	}

	return FetchRemoteActorWithDeps(actorURI, client, database)
}

// extractDomain extracts the domain from an actor URI.
// Example: "https://mastodon.social/users/alice" -> "mastodon.social"
func extractDomain(actorURI string) (string, error) {
	parsed, err := url.Parse(actorURI)
	if err != nil {
		return "", fmt.Errorf("invalid actor URI: %w", err)
	}

	return parsed.Host, nil
}

// extractUsername extracts username from various URI formats.
// Examples:
// - "https://example.com/users/alice" -> "alice"
// - "https://example.com/@alice" -> "alice"
func extractUsername(uri string) string {
	parts := strings.Split(uri, "/")
	if len(parts) > 0 {
		username := parts[len(parts)-1]
		return strings.TrimPrefix(username, "@")
	}
	return ""
}
