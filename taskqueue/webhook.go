package taskqueue

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/crypto/hkdf"

	"encore.app/httpgateway"
	sharedpubsub "encore.app/pkg/pubsub"
	"encore.app/pkg/reqlog"
	"encore.app/responsecache"
	"encore.dev/pubsub"
)

// WebhookDeliveredTopic announces every webhook reconciled into the
// response cache. Declared next to the event it carries, the same way the
// teacher's CacheInvalidateTopic sits in invalidation/service.go beside
// InvalidationEvent.
var WebhookDeliveredTopic = pubsub.NewTopic[*sharedpubsub.WebhookDeliveredEvent](
	sharedpubsub.TopicWebhookDelivered,
	pubsub.TopicConfig{
		DeliveryGuarantee: pubsub.AtLeastOnce,
	},
)

// webhookPayload is the minimal shape this core requires from a delivered
// provider payload: a tag field carrying the cache key the task was posted
// with (spec §4.7, §6 "Webhook surface"). Everything else in the body is
// opaque and stored verbatim as the response.
type webhookPayload struct {
	Tag string `json:"tag"`
}

// VerifySignature checks an HMAC-SHA256 hex signature over the raw webhook
// body, the same construction as a provider-delivered X-*-Signature header.
// Grounded on tomtom215-cartographus's verifyWebhookSignature.
func VerifySignature(body []byte, signatureHex, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signatureHex), []byte(expected))
}

// DeriveClientSecret derives a per-client webhook-signing secret from one
// operator-configured master secret, so onboarding a client never requires
// minting and distributing a new standalone secret. Grounded on
// tomtom215-cartographus's deriveKey (HKDF-SHA256, client name as the
// context parameter binds the derived key to that one client).
func DeriveClientSecret(master []byte, client string) (string, error) {
	reader := hkdf.New(sha256.New, master, nil, []byte(client))
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(reader, key); err != nil {
		return "", fmt.Errorf("taskqueue: derive webhook secret: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// Reconcile implements the webhook handler's contract (spec §4.7, §6):
// given a delivered payload whose tag field names the cache key, store the
// payload under that key so the next Standard* call with identical search
// params retrieves it.
func Reconcile(ctx context.Context, manager httpgateway.CacheManager, client, endpoint string, body []byte, statusCode int) error {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("taskqueue: parse webhook payload: %w", err)
	}
	if payload.Tag == "" {
		return fmt.Errorf("taskqueue: webhook payload missing tag")
	}

	_, err := manager.StoreResponse(ctx, responsecache.StoreInput{
		Client:             client,
		Key:                payload.Tag,
		Endpoint:           endpoint,
		Method:             "POST",
		ResponseBody:       body,
		ResponseStatusCode: statusCode,
		ResponseSize:       len(body),
	})
	if err != nil {
		return fmt.Errorf("taskqueue: store webhook result: %w", err)
	}

	requestID := reqlog.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = reqlog.NewRequestID()
	}
	if _, pubErr := WebhookDeliveredTopic.Publish(ctx, &sharedpubsub.WebhookDeliveredEvent{
		Version:     sharedpubsub.EventVersion1,
		Client:      client,
		Tag:         payload.Tag,
		Endpoint:    endpoint,
		StatusCode:  statusCode,
		DeliveredAt: time.Now(),
		RequestID:   requestID,
	}); pubErr != nil {
		return fmt.Errorf("taskqueue: publish webhook delivered event: %w", pubErr)
	}
	return nil
}
