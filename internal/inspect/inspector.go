// Package inspect examines intercepted responses for ban signals,
// token problems, and cacheable user data, updating account health and
// the notification log as a side effect.
package inspect

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/RayYiHang/warp-surge/internal/account"
	"github.com/RayYiHang/warp-surge/internal/intercept"
	"github.com/RayYiHang/warp-surge/internal/kv"
	"github.com/RayYiHang/warp-surge/internal/notify"
	"github.com/RayYiHang/warp-surge/internal/settings"
	"golang.org/x/time/rate"
)

const (
	// SettingsCacheTTL bounds the in-memory user-settings snapshot.
	SettingsCacheTTL = 30 * time.Minute

	// banCheckWindow throttles ban analysis per identity.
	banCheckWindow = time.Minute

	// maxRefreshJitter spreads 401-triggered refreshes to avoid a
	// thundering herd when several requests fail at once.
	maxRefreshJitter = 5 * time.Second
)

// Endpoint classes within the managed service.
const (
	endpointAgent        = "/ai/multi-agent"
	endpointGraphQL      = "/graphql/v2"
	endpointCloudObjects = "GetUpdatedCloudObjects"
	endpointAIConfig     = "/ai/config"
)

// banSignalMarkers make a response a candidate ban signal (exact,
// case-sensitive body substrings).
var banSignalMarkers = []string{"suspended", "banned", "restricted"}

// confirmedBanPhrases confirm a ban when found case-insensitively in a
// candidate response body.
var confirmedBanPhrases = []string{
	"account suspended",
	"account banned",
	"access denied",
	"violated terms",
	"abuse detected",
	"unauthorized access",
}

// RefreshTrigger dispatches an out-of-band refresh for one identity;
// satisfied by the refresh scheduler.
type RefreshTrigger interface {
	RefreshAccount(ctx context.Context, email string)
}

// Metrics observes inspection outcomes; satisfied by the metrics
// collector.
type Metrics interface {
	RecordInspected(endpoint string)
	RecordConfirmedBan()
}

// Inspector is stateless per call except for the time-boxed
// user-settings cache and the per-identity ban-analysis limiters.
type Inspector struct {
	accounts *account.Store
	settings *settings.Service
	logbook  *notify.Log
	storage  kv.Store
	trigger  RefreshTrigger
	metrics  Metrics
	host     string

	mu            sync.Mutex
	banLimiters   map[string]*rate.Limiter
	userSettings  json.RawMessage
	cacheDeadline time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

func NewInspector(accounts *account.Store, svc *settings.Service, logbook *notify.Log, storage kv.Store, trigger RefreshTrigger, host string) *Inspector {
	if host == "" {
		host = intercept.DefaultServiceHost
	}
	return &Inspector{
		accounts:    accounts,
		settings:    svc,
		logbook:     logbook,
		storage:     storage,
		trigger:     trigger,
		host:        host,
		banLimiters: map[string]*rate.Limiter{},
		now:         time.Now,
		sleep:       time.Sleep,
	}
}

// SetMetrics attaches a metrics recorder. Optional.
func (i *Inspector) SetMetrics(m Metrics) { i.metrics = m }

var _ intercept.ResponseInspector = (*Inspector)(nil)

// Inspect evaluates ban signals, classifies the response by endpoint,
// and caches user data. Side-effecting only; the response is never
// modified. The active identity is resolved once up front so a ban
// applied mid-inspection does not hide later signals for the same
// response.
func (i *Inspector) Inspect(resp *intercept.Response, req *intercept.Request) {
	if !strings.Contains(req.URL, i.host) {
		return
	}

	email := i.activeEmail()
	i.evaluateBanSignals(resp, email)

	switch {
	case strings.Contains(req.URL, endpointAgent):
		i.observe("agent")
		i.inspectAgent(resp, email)
	case strings.Contains(req.URL, endpointGraphQL):
		i.observe("graphql")
		i.inspectGraphQL(resp, req, email)
	case strings.Contains(req.URL, endpointCloudObjects):
		i.observe("cloud_objects")
		i.inspectCloudObjects(resp)
	case strings.Contains(req.URL, endpointAIConfig):
		i.observe("ai_config")
		i.inspectAIConfig(resp)
	case strings.Contains(req.URL, "auth") || strings.Contains(req.URL, "login"):
		i.observe("auth")
		i.inspectAuth(resp, email)
	default:
		i.observe("other")
	}
}

func (i *Inspector) observe(endpoint string) {
	if i.metrics != nil {
		i.metrics.RecordInspected(endpoint)
	}
}

func (i *Inspector) inspectAgent(resp *intercept.Response, email string) {
	switch resp.StatusCode {
	case 403:
		i.handleForbidden(resp, email)
	case 401:
		i.scheduleRefresh(email)
	case 429:
		i.handleRateLimit(resp, email)
	case 200:
		i.markActiveHealthy(email)
	}
}

func (i *Inspector) inspectAuth(resp *intercept.Response, email string) {
	if resp.StatusCode == 401 || resp.StatusCode == 403 {
		i.scheduleRefresh(email)
	}
}

func (i *Inspector) handleForbidden(resp *intercept.Response, email string) {
	if email == "" {
		return
	}
	log.Printf("🚫 403 on agent endpoint, account %s may be restricted", email)
	if err := i.accounts.MarkHealth(email, account.HealthBanned); err != nil {
		log.Printf("⚠️ Failed to mark %s banned: %v", email, err)
	}
	i.notify(notify.Notification{
		Type:       notify.TypeAccountBanned,
		Email:      email,
		Message:    "account access restricted",
		StatusCode: resp.StatusCode,
	})
}

func (i *Inspector) handleRateLimit(resp *intercept.Response, email string) {
	if email == "" {
		return
	}
	// Rate limiting is not account failure; no health change.
	i.notify(notify.Notification{
		Type:       notify.TypeRateLimit,
		Email:      email,
		Message:    "API call rate limited",
		StatusCode: resp.StatusCode,
	})
}

func (i *Inspector) markActiveHealthy(email string) {
	if email == "" {
		return
	}
	if err := i.accounts.MarkHealth(email, account.HealthHealthy); err != nil {
		log.Printf("⚠️ Failed to mark %s healthy: %v", email, err)
	}
}

// scheduleRefresh dispatches a token refresh for the active identity
// with a random 0-5s delay. Fire-and-forget; never blocks response
// delivery.
func (i *Inspector) scheduleRefresh(email string) {
	if email == "" {
		return
	}
	log.Printf("🎫 401 detected, scheduling token refresh for %s", email)
	go func() {
		i.sleep(time.Duration(rand.Int63n(int64(maxRefreshJitter))))
		i.trigger.RefreshAccount(context.Background(), email)
	}()
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLPayload struct {
	Errors []graphQLError `json:"errors"`
}

func (i *Inspector) inspectGraphQL(resp *intercept.Response, req *intercept.Request, email string) {
	if resp.StatusCode != 200 {
		return
	}

	var payload graphQLPayload
	if err := json.Unmarshal([]byte(resp.Body), &payload); err != nil {
		log.Printf("⚠️ Unparseable GraphQL response: %v", err)
		return
	}

	if len(payload.Errors) > 0 {
		i.handleGraphQLErrors(payload.Errors, email)
	}

	switch extractGraphQLOperation(req.URL) {
	case "CreateGenericStringObject", "GetUpdatedCloudObjects":
		i.cacheUserSettings([]byte(resp.Body))
	case "":
	default:
		log.Printf("📦 Unhandled GraphQL operation: %s", extractGraphQLOperation(req.URL))
	}
}

func (i *Inspector) handleGraphQLErrors(errs []graphQLError, email string) {
	if email == "" {
		return
	}
	for _, gqlErr := range errs {
		message := strings.ToLower(gqlErr.Message)
		if strings.Contains(message, "permission") ||
			strings.Contains(message, "unauthorized") ||
			strings.Contains(message, "forbidden") {
			i.notify(notify.Notification{
				Type:       notify.TypeGraphQLPermErr,
				Email:      email,
				Message:    gqlErr.Message,
				StatusCode: 200,
			})
		}
	}
}

func (i *Inspector) inspectCloudObjects(resp *intercept.Response) {
	if resp.StatusCode == 200 {
		i.cacheUserSettings([]byte(resp.Body))
	}
}

func (i *Inspector) inspectAIConfig(resp *intercept.Response) {
	if resp.StatusCode != 200 {
		return
	}
	var config json.RawMessage
	if err := json.Unmarshal([]byte(resp.Body), &config); err != nil {
		log.Printf("⚠️ Unparseable AI config response: %v", err)
		return
	}
	if err := i.storage.Write(kv.KeyAIConfig, string(config)); err != nil {
		log.Printf("⚠️ Failed to persist AI config: %v", err)
	}
}

// evaluateBanSignals runs the shared candidate detection: 403/423
// status or a marker substring in the body. Candidates are analyzed at
// most once per identity per minute.
func (i *Inspector) evaluateBanSignals(resp *intercept.Response, email string) {
	current, err := i.settings.Get()
	if err != nil || !current.BanDetection {
		return
	}

	candidate := resp.StatusCode == 403 || resp.StatusCode == 423
	if !candidate {
		for _, marker := range banSignalMarkers {
			if strings.Contains(resp.Body, marker) {
				candidate = true
				break
			}
		}
	}
	if !candidate || email == "" {
		return
	}
	if !i.allowBanCheck(email) {
		return
	}

	log.Printf("🚫 Possible ban signal for %s, analyzing response", email)
	i.analyzeBanResponse(resp, email)
}

func (i *Inspector) allowBanCheck(email string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	limiter, ok := i.banLimiters[email]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(banCheckWindow), 1)
		i.banLimiters[email] = limiter
	}
	return limiter.Allow()
}

// analyzeBanResponse distinguishes a confirmed ban from a transient
// issue by keyword analysis. Never fails; worst case it records a
// potential_issue notification.
func (i *Inspector) analyzeBanResponse(resp *intercept.Response, email string) {
	body := strings.ToLower(resp.Body)
	for _, phrase := range confirmedBanPhrases {
		if strings.Contains(body, phrase) {
			if err := i.accounts.MarkHealth(email, account.HealthBanned); err != nil {
				log.Printf("⚠️ Failed to mark %s banned: %v", email, err)
			}
			i.notify(notify.Notification{
				Type:       notify.TypeConfirmedBan,
				Email:      email,
				Message:    "account ban confirmed",
				StatusCode: resp.StatusCode,
			})
			if i.metrics != nil {
				i.metrics.RecordConfirmedBan()
			}
			return
		}
	}

	i.notify(notify.Notification{
		Type:       notify.TypePotentialIssue,
		Email:      email,
		Message:    "account may have a transient issue",
		StatusCode: resp.StatusCode,
	})
}

// cacheUserSettings stores the latest user-settings snapshot both in
// the time-boxed memory cache and in persisted storage.
func (i *Inspector) cacheUserSettings(body []byte) {
	var snapshot json.RawMessage
	if err := json.Unmarshal(body, &snapshot); err != nil {
		log.Printf("⚠️ Unparseable user settings payload: %v", err)
		return
	}

	i.mu.Lock()
	i.userSettings = snapshot
	i.cacheDeadline = i.now().Add(SettingsCacheTTL)
	i.mu.Unlock()

	if err := i.storage.Write(kv.KeyUserSettings, string(snapshot)); err != nil {
		log.Printf("⚠️ Failed to persist user settings: %v", err)
	}
}

// CachedUserSettings returns the current user-settings snapshot,
// reloading from storage once the memory cache expires.
func (i *Inspector) CachedUserSettings() json.RawMessage {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.userSettings != nil && i.now().Before(i.cacheDeadline) {
		return i.userSettings
	}

	raw, ok, err := i.storage.Read(kv.KeyUserSettings)
	if err != nil || !ok || raw == "" {
		return i.userSettings
	}
	i.userSettings = json.RawMessage(raw)
	i.cacheDeadline = i.now().Add(SettingsCacheTTL)
	return i.userSettings
}

func (i *Inspector) activeEmail() string {
	email, err := i.accounts.ActiveEmail()
	if err != nil {
		log.Printf("⚠️ Active pointer unreadable: %v", err)
		return ""
	}
	return email
}

func (i *Inspector) notify(n notify.Notification) {
	if err := i.logbook.Append(n); err != nil {
		log.Printf("⚠️ Failed to append notification: %v", err)
	}
}

func extractGraphQLOperation(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Query().Get("op")
}
