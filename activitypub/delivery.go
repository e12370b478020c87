package activitypub

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/deemkeen/stegodon/domain"
	"github.com/deemkeen/stegodon/util"
)

// maxDeliveryAttempts is how many times a queued delivery is retried
// before it is abandoned, per spec.md §4.3.
const maxDeliveryAttempts = 10

// deliveryBatchSize bounds how many due deliveries a single worker tick
// pulls off the queue.
const deliveryBatchSize = 50

// deliveryBackoffBase is the delay applied after the first failed
// delivery attempt; later attempts double it, capped by deliveryBackoffMax.
const deliveryBackoffBase = 10 * time.Second
const deliveryBackoffMax = 1 * time.Hour

// DeliveryDeps bundles the dependencies the queue worker needs, so it
// can run against a mock Database/HTTPClient in tests as well as the
// production singleton database and default HTTP client.
type DeliveryDeps struct {
	Database   Database
	HTTPClient HTTPClient
}

// deliveryWorkerInterval is how often the background worker drains due
// items from the delivery queue.
const deliveryWorkerInterval = 30 * time.Second

// StartDeliveryWorker starts a background ticker that drains the
// durable delivery queue, returning a func that stops it.
func StartDeliveryWorker(conf *util.AppConfig) func() {
	deps := &DeliveryDeps{Database: NewDBWrapper(), HTTPClient: defaultHTTPClient}
	ticker := time.NewTicker(deliveryWorkerInterval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				processDeliveryQueueWithDeps(conf, deps)
			case <-done:
				return
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(done)
	}
}

// processDeliveryQueueWithDeps drains due items from the delivery
// queue, signing and POSTing each to its target inbox. Failures are
// retried with exponential backoff up to maxDeliveryAttempts, after
// which the item is dead-lettered: kept in the queue table but no longer
// picked up.
func processDeliveryQueueWithDeps(conf *util.AppConfig, deps *DeliveryDeps) {
	err, items := deps.Database.ReadPendingDeliveries(deliveryBatchSize)
	if err != nil {
		log.Printf("Delivery: failed to read pending deliveries: %v", err)
		return
	}
	if items == nil {
		return
	}

	for _, it := range *items {
		item := it
		if err := deliverActivityWithDeps(&item, conf, deps); err != nil {
			log.Printf("Delivery: attempt failed for %s: %v", item.InboxURI, err)
			handleDeliveryFailure(&item, deps)
			continue
		}
		if err := deps.Database.DeleteDelivery(item.Id); err != nil {
			log.Printf("Delivery: failed to remove delivered item %s: %v", item.Id, err)
		}
	}
}

// handleDeliveryFailure bumps an item's attempt count and schedules its
// next retry, or dead-letters it once maxDeliveryAttempts is reached.
func handleDeliveryFailure(item *domain.DeliveryQueueItem, deps *DeliveryDeps) {
	attempts := item.Attempts + 1
	if attempts >= maxDeliveryAttempts {
		log.Printf("Delivery: giving up on %s after %d attempts", item.InboxURI, attempts)
		if err := deps.Database.UpdateDeliveryDeadLetter(item.Id); err != nil {
			log.Printf("Delivery: failed to dead-letter exhausted item %s: %v", item.Id, err)
		}
		return
	}

	backoff := deliveryBackoffBase << min(attempts-1, 8)
	if backoff > deliveryBackoffMax {
		backoff = deliveryBackoffMax
	}
	nextRetry := time.Now().Add(backoff)

	if err := deps.Database.UpdateDeliveryAttempt(item.Id, attempts, nextRetry); err != nil {
		log.Printf("Delivery: failed to update attempt count for %s: %v", item.Id, err)
	}
}

// deliverActivityWithDeps signs and POSTs a single queued delivery's
// stored activity JSON to its target inbox, resolving the signing key
// from the activity's own actor field so the queue doesn't need a
// separate signing-account lookup.
func deliverActivityWithDeps(item *domain.DeliveryQueueItem, conf *util.AppConfig, deps *DeliveryDeps) error {
	var activity map[string]any
	if err := json.Unmarshal([]byte(item.ActivityJSON), &activity); err != nil {
		return fmt.Errorf("failed to parse activity JSON: %w", err)
	}

	actorURI, ok := activity["actor"].(string)
	if !ok || actorURI == "" {
		return fmt.Errorf("activity missing actor field")
	}

	parsed, err := url.Parse(actorURI)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("invalid actor URI: %s", actorURI)
	}

	username := extractUsername(actorURI)
	err, localAccount := deps.Database.ReadAccByUsername(username)
	if err != nil || localAccount == nil {
		return fmt.Errorf("failed to get local account for actor %s: %w", actorURI, err)
	}

	privateKey, err := ParsePrivateKey(localAccount.WebPrivateKey)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}

	hash := sha256.Sum256([]byte(item.ActivityJSON))
	digest := "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])

	req, err := http.NewRequest("POST", item.InboxURI, bytes.NewReader([]byte(item.ActivityJSON)))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", "stegodon/1.0 ActivityPub")
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("Digest", digest)

	keyID := fmt.Sprintf("https://%s/users/%s#main-key", conf.Conf.SslDomain, localAccount.Username)
	if err := SignRequest(req, privateKey, keyID); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	resp, err := deps.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remote server returned status: %d", resp.StatusCode)
	}

	return nil
}
