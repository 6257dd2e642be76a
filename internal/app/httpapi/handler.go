// Package httpapi exposes the application over REST. Identity comes from
// Supabase access tokens verified at the boundary; sensitive endpoints write
// audit entries.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	app "github.com/Van103/fun-charity-sub001/internal/app"
	"github.com/Van103/fun-charity-sub001/internal/app/metrics"
	chatsvc "github.com/Van103/fun-charity-sub001/internal/app/services/chat"
	"github.com/Van103/fun-charity-sub001/internal/app/services/kyc"
	"github.com/Van103/fun-charity-sub001/internal/app/services/notifier"
	tokensvc "github.com/Van103/fun-charity-sub001/internal/app/services/token"
	walletsvc "github.com/Van103/fun-charity-sub001/internal/app/services/wallet"
	"github.com/Van103/fun-charity-sub001/internal/app/storage"
	"github.com/Van103/fun-charity-sub001/pkg/logger"
)

// Config holds boundary configuration.
type Config struct {
	// AuthSecret verifies Supabase access tokens. Empty disables auth and
	// every request is anonymous.
	AuthSecret []byte
	// AuditPath, when set, appends audit entries as JSONL.
	AuditPath string
	// WalletTTL overrides the balance snapshot TTL.
	WalletTTL time.Duration
	// WalletPrice converts balances to an approximate USD figure.
	WalletPrice float64
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app   *app.Application
	cfg   Config
	log   *logger.Logger
	audit *auditLog

	walletMu sync.Mutex
	wallets  map[string]*walletsvc.Tracker
}

// NewHandler returns the instrumented router exposing the REST API.
func NewHandler(application *app.Application, cfg Config, log *logger.Logger) (http.Handler, error) {
	if application == nil {
		return nil, fmt.Errorf("application is required")
	}
	if log == nil {
		log = logger.NewDefault("httpapi")
	}

	sink, err := newFileAuditSink(cfg.AuditPath)
	if err != nil {
		return nil, fmt.Errorf("open audit sink: %w", err)
	}

	h := &handler{
		app:     application,
		cfg:     cfg,
		log:     log,
		audit:   newAuditLog(0, sink),
		wallets: make(map[string]*walletsvc.Tracker),
	}

	auth := NewAuthMiddleware(cfg.AuthSecret)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(auth.Middleware)

	// Public surface.
	api.HandleFunc("/honor-board", h.honorBoard).Methods(http.MethodGet)
	api.HandleFunc("/i18n/{lang}/{key}", h.translate).Methods(http.MethodGet)
	api.HandleFunc("/wallets/{address}/balance", h.walletBalance).Methods(http.MethodGet)

	// Authenticated surface.
	authed := api.NewRoute().Subrouter()
	authed.Use(RequireAuth)
	authed.HandleFunc("/notifications/counters", h.notificationCounters).Methods(http.MethodGet)
	authed.HandleFunc("/notifications/clear", h.notificationClear).Methods(http.MethodPost)
	authed.HandleFunc("/notifications/subscription", h.notificationUnsubscribe).Methods(http.MethodDelete)
	authed.HandleFunc("/agora/token", h.agoraToken).Methods(http.MethodPost)
	authed.HandleFunc("/kyc/documents/url", h.kycDocumentURL).Methods(http.MethodPost)
	authed.HandleFunc("/donations", h.listDonations).Methods(http.MethodGet)
	authed.HandleFunc("/donations", h.recordDonation).Methods(http.MethodPost)
	authed.HandleFunc("/donations/{id}/complete", h.completeDonation).Methods(http.MethodPost)
	authed.HandleFunc("/channels", h.memberChannels).Methods(http.MethodGet)
	authed.HandleFunc("/messages/{id}", h.editMessage).Methods(http.MethodPatch)
	authed.HandleFunc("/preferences/{key}", h.getPreference).Methods(http.MethodGet)
	authed.HandleFunc("/preferences/{key}", h.setPreference).Methods(http.MethodPut)
	authed.HandleFunc("/audit", h.listAudit).Methods(http.MethodGet)

	return metrics.InstrumentHandler(r), nil
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- notifications ----------------------------------------------------------

func (h *handler) notificationCounters(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	agg, ok := h.app.Notifications.Peek(user.ID)
	if !ok {
		var err error
		agg, err = h.app.Notifications.Acquire(r.Context(), user.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}

	counters := agg.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"unread_total":    counters.UnreadTotal,
		"friend_requests": counters.FriendRequests,
		"reactions":       counters.Reactions,
		"comments":        counters.Comments,
		"donations":       counters.Donations,
		"badge":           notifier.FormatBadge(counters.UnreadTotal),
	})
}

func (h *handler) notificationClear(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	agg, ok := h.app.Notifications.Peek(user.ID)
	if ok {
		agg.Clear()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) notificationUnsubscribe(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	h.app.Notifications.Release(user.ID)
	w.WriteHeader(http.StatusNoContent)
}

// --- channel tokens ---------------------------------------------------------

func (h *handler) agoraToken(w http.ResponseWriter, r *http.Request) {
	if h.app.Tokens == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("token issuance not configured"))
		return
	}
	user := UserFromContext(r.Context())

	var payload struct {
		ChannelName string `json:"channelName"`
		Channel     string `json:"channel"`
		UID         string `json:"uid"`
		Role        string `json:"role"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	channel := payload.ChannelName
	if channel == "" {
		channel = payload.Channel
	}
	// The grant is always bound to the authenticated caller; a uid in the
	// body may only restate it.
	if payload.UID != "" && payload.UID != user.ID {
		writeError(w, http.StatusForbidden, fmt.Errorf("uid does not match the authenticated user"))
		return
	}

	grant, err := h.app.Tokens.Issue(channel, user.ID)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, tokensvc.ErrRateLimited) {
			status = http.StatusTooManyRequests
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

// --- kyc --------------------------------------------------------------------

func (h *handler) kycDocumentURL(w http.ResponseWriter, r *http.Request) {
	if h.app.KYC == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("kyc signing not configured"))
		return
	}
	user := UserFromContext(r.Context())

	var payload struct {
		Path string `json:"path"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	signed, err := h.app.KYC.SignedURL(user.ID, payload.Path)
	status := http.StatusOK
	switch {
	case errors.Is(err, kyc.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, kyc.ErrForbidden):
		status = http.StatusForbidden
	case err != nil:
		status = http.StatusBadRequest
	}

	h.audit.add(auditEntry{
		Time:       time.Now().UTC(),
		User:       user.ID,
		Role:       user.Role,
		Action:     "kyc.document_url",
		Target:     payload.Path,
		Status:     status,
		RemoteAddr: r.RemoteAddr,
	})

	if err != nil {
		writeError(w, status, err)
		return
	}
	writeJSON(w, status, map[string]string{"url": signed})
}

// --- audit ------------------------------------------------------------------

// listAudit exposes the in-memory audit trail to the service role.
func (h *handler) listAudit(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user.Role != "service_role" {
		writeError(w, http.StatusForbidden, fmt.Errorf("audit trail requires the service role"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": h.audit.list()})
}

// --- donations --------------------------------------------------------------

func (h *handler) listDonations(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	donations, err := h.app.Donations.ListByDonor(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, donations)
}

func (h *handler) recordDonation(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	var payload struct {
		CampaignID string `json:"campaign_id"`
		Amount     string `json:"amount"`
		Currency   string `json:"currency"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	d, err := h.app.Donations.Record(r.Context(), user.ID, payload.CampaignID, payload.Amount, payload.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *handler) completeDonation(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	id := mux.Vars(r)["id"]

	var payload struct {
		TxHash string `json:"tx_hash"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	d, err := h.app.Donations.Complete(r.Context(), id, payload.TxHash)
	status := http.StatusOK
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case err != nil:
		status = http.StatusBadRequest
	}

	h.audit.add(auditEntry{
		Time:       time.Now().UTC(),
		User:       user.ID,
		Role:       user.Role,
		Action:     "donation.complete",
		Target:     id,
		Status:     status,
		RemoteAddr: r.RemoteAddr,
	})

	if err != nil {
		writeError(w, status, err)
		return
	}
	writeJSON(w, status, d)
}

func (h *handler) honorBoard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := h.app.Donations.HonorBoard(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- chat -------------------------------------------------------------------

func (h *handler) memberChannels(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	channels, err := h.app.Chat.MemberChannels(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

func (h *handler) editMessage(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	id := mux.Vars(r)["id"]

	var payload struct {
		Body string `json:"body"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	msg, err := h.app.Chat.EditMessage(r.Context(), id, user.ID, payload.Body)
	if err != nil {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, storage.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, chatsvc.ErrEditWindowClosed):
			status = http.StatusForbidden
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// --- preferences ------------------------------------------------------------

func (h *handler) getPreference(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	key := mux.Vars(r)["key"]

	value, err := h.app.Preferences.GetPreference(r.Context(), user.ID, key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
}

func (h *handler) setPreference(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	key := mux.Vars(r)["key"]

	var payload struct {
		Value string `json:"value"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.app.Preferences.SetPreference(r.Context(), user.ID, key, payload.Value); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": payload.Value})
}

// --- wallet -----------------------------------------------------------------

func (h *handler) walletBalance(w http.ResponseWriter, r *http.Request) {
	if h.app.Chain == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("chain access not configured"))
		return
	}
	address := mux.Vars(r)["address"]
	if !walletsvc.ValidAddress(address) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid address %q", address))
		return
	}

	force := r.URL.Query().Get("force") == "1" || r.URL.Query().Get("force") == "true"
	snapshot := h.tracker(address).Refetch(r.Context(), force)

	resp := map[string]any{
		"address":    snapshot.Address,
		"amount":     snapshot.Amount,
		"usd_approx": snapshot.USDApprox,
		"fetched_at": snapshot.FetchedAt,
		"loading":    snapshot.Loading,
	}
	if snapshot.Err != "" {
		resp["error"] = snapshot.Err
	}
	writeJSON(w, http.StatusOK, resp)
}

// tracker returns the per-address balance tracker, creating it on first use.
func (h *handler) tracker(address string) *walletsvc.Tracker {
	h.walletMu.Lock()
	defer h.walletMu.Unlock()
	if t, ok := h.wallets[address]; ok {
		return t
	}

	var opts []walletsvc.Option
	if h.cfg.WalletTTL > 0 {
		opts = append(opts, walletsvc.WithTTL(h.cfg.WalletTTL))
	}
	if h.cfg.WalletPrice > 0 {
		opts = append(opts, walletsvc.WithApproxPrice(h.cfg.WalletPrice))
	}
	t := walletsvc.NewTracker(h.app.Chain, address, h.log.WithField("address", address), opts...)
	h.wallets[address] = t
	return t
}

// --- i18n -------------------------------------------------------------------

func (h *handler) translate(w http.ResponseWriter, r *http.Request) {
	if h.app.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("translations not configured"))
		return
	}
	vars := mux.Vars(r)
	value := h.app.Catalog.Translate(r.Context(), vars["lang"], vars["key"])
	writeJSON(w, http.StatusOK, map[string]string{
		"lang":  vars["lang"],
		"key":   vars["key"],
		"value": value,
	})
}

// --- helpers ----------------------------------------------------------------

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
