package taskqueue

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"encore.app/httpgateway"
	"encore.app/pkg/reqlog"
	"encore.app/responsecache"
)

//encore:service
type Service struct {
	Manager httpgateway.CacheManager
	Secrets WebhookSecrets
}

// WebhookSecrets resolves the per-client HMAC secret used to verify inbound
// webhook deliveries. An empty secret disables verification for that
// client, which callers should only do in local development.
type WebhookSecrets interface {
	SecretFor(client string) string
}

// secrets holds the master key deferred-task webhook secrets are derived
// from when a client has no explicit WebhookSecret configured.
var secrets struct {
	WebhookMasterSecret string
}

func initService() (*Service, error) {
	manager, err := responsecache.CurrentManager()
	if err != nil {
		return nil, fmt.Errorf("taskqueue: %w", err)
	}
	registry, err := responsecache.CurrentRegistry()
	if err != nil {
		return nil, fmt.Errorf("taskqueue: %w", err)
	}
	return &Service{Manager: manager, Secrets: derivingSecrets{base: registry, master: secrets.WebhookMasterSecret}}, nil
}

// derivingSecrets wraps a base WebhookSecrets source, falling back to an
// HKDF-derived secret when the base has nothing configured for a client.
type derivingSecrets struct {
	base   WebhookSecrets
	master string
}

func (d derivingSecrets) SecretFor(client string) string {
	if s := d.base.SecretFor(client); s != "" {
		return s
	}
	if d.master == "" {
		return ""
	}
	derived, err := DeriveClientSecret([]byte(d.master), client)
	if err != nil {
		return ""
	}
	return derived
}

// Webhook is the inbound delivery endpoint for deferred-task results
// (spec §4.7, §6). It is a raw endpoint — not a typed encore:api — because
// signature verification needs the exact bytes of the body before any JSON
// decoding happens.
//
//encore:api public raw method=POST path=/webhooks/:client
func Webhook(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	requestID := reqlog.RequestIDFromHeader(req)
	ctx := reqlog.WithRequestID(req.Context(), requestID)
	w.Header().Set("X-Request-ID", requestID)

	status := http.StatusOK
	defer func() {
		reqlog.LogHTTP(requestID, req.Method, req.URL.Path, status, time.Since(start))
	}()

	client := strings.TrimPrefix(req.URL.Path, "/webhooks/")
	if client == "" {
		status = http.StatusBadRequest
		http.Error(w, "missing client", status)
		return
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		status = http.StatusBadRequest
		http.Error(w, "failed to read body", status)
		return
	}
	defer req.Body.Close()

	if svc != nil && svc.Secrets != nil {
		secret := svc.Secrets.SecretFor(client)
		if secret != "" {
			signature := req.Header.Get("X-Webhook-Signature")
			if signature == "" || !VerifySignature(body, signature, secret) {
				status = http.StatusUnauthorized
				http.Error(w, "invalid signature", status)
				return
			}
		}
	}

	if svc == nil || svc.Manager == nil {
		status = http.StatusInternalServerError
		http.Error(w, "service not initialized", status)
		return
	}

	if err := Reconcile(ctx, svc.Manager, client, "webhook", body, http.StatusOK); err != nil {
		log.Printf("taskqueue: webhook reconcile failed: client=%s request_id=%s err=%v", client, requestID, err)
		status = http.StatusInternalServerError
		http.Error(w, "failed to reconcile task", status)
		return
	}

	w.WriteHeader(status)
}

var svc *Service

func init() {
	var err error
	svc, err = initService()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize taskqueue service: %v", err))
	}
}
