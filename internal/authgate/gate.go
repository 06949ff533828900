package authgate

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/smartly/bridge/internal/config"
	"github.com/smartly/bridge/internal/httpapi"
	"github.com/smartly/bridge/internal/metrics"
)

const timestampSkew = 30 * time.Second

type ctxKey int

const authInfoKey ctxKey = iota

// Info is what a verified request carries forward to downstream handlers.
type Info struct {
	ClientID string
	SourceIP string
}

func FromContext(ctx context.Context) (Info, bool) {
	v, ok := ctx.Value(authInfoKey).(Info)
	return v, ok
}

// NewContext returns a copy of ctx carrying info, the same way Middleware
// injects it after a successful Verify.
func NewContext(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, authInfoKey, info)
}

// DenyLogger records a log_deny record for every verification failure.
// It is satisfied by internal/audit.Log.
type DenyLogger interface {
	LogDeny(ctx context.Context, reason, sourceIP, clientID string)
}

// Gate verifies every inbound request in a fixed fail-fast order: CIDR
// filter, header presence, client match, timestamp skew, nonce freshness,
// signature, then rate limit.
type Gate struct {
	store   *config.Store
	nonces  *NonceCache
	limiter *RateLimiter
	audit   DenyLogger
	log     zerolog.Logger

	Metrics *metrics.Collector
}

func NewGate(store *config.Store, nonces *NonceCache, limiter *RateLimiter, audit DenyLogger, log zerolog.Logger) *Gate {
	return &Gate{store: store, nonces: nonces, limiter: limiter, audit: audit, log: log.With().Str("component", "authgate").Logger()}
}

func (g *Gate) deny(ctx context.Context, reason, sourceIP, clientID string) {
	if g.Metrics != nil {
		g.Metrics.AuthDenials.WithLabelValues(reason).Inc()
	}
	if g.audit != nil {
		g.audit.LogDeny(ctx, reason, sourceIP, clientID)
	}
}

// Middleware wraps an http.Handler so every request passes through Verify
// before reaching it. On success it injects Info into the request context.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
		if err != nil {
			httpapi.WriteError(w, g.log, httpapi.Wrap(httpapi.KindInvalidJSON, err))
			return
		}
		r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))

		info, rlResult, apiErr := g.Verify(r.Context(), r, body)
		if apiErr != nil {
			if apiErr.Kind == httpapi.KindRateLimited {
				RateLimitHeaders(w, rlResult)
			}
			httpapi.WriteError(w, g.log, apiErr)
			return
		}
		ctx := context.WithValue(r.Context(), authInfoKey, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Verify runs the fixed verification order and returns the resolved Info
// on success, or a *httpapi.Error carrying the exact kind on failure.
func (g *Gate) Verify(ctx context.Context, r *http.Request, body []byte) (Info, Result, *httpapi.Error) {
	rec := g.store.Get()

	directPeer := directPeerIP(r.RemoteAddr)
	allowed := config.ParsedAllowedCIDRs(rec)
	sourceIP := ResolveSourceIP(rec.TrustProxyMode, directPeer, r.Header.Get("X-Forwarded-For"), allowed)

	// 1. CIDR filter
	if len(allowed) > 0 && !InAnyCIDR(sourceIP, allowed) {
		g.deny(ctx, "ip_not_allowed", sourceIP, "")
		return Info{}, Result{}, httpapi.New(httpapi.KindIPNotAllowed)
	}

	// 2. Header presence
	clientID := r.Header.Get("X-Client-Id")
	timestamp := r.Header.Get("X-Timestamp")
	nonce := r.Header.Get("X-Nonce")
	signature := r.Header.Get("X-Signature")
	if clientID == "" || timestamp == "" || nonce == "" || signature == "" {
		g.deny(ctx, "missing_headers", sourceIP, clientID)
		return Info{}, Result{}, httpapi.New(httpapi.KindMissingHeaders)
	}

	// 3. Client match
	if clientID != rec.ClientID {
		g.deny(ctx, "invalid_client_id", sourceIP, clientID)
		return Info{}, Result{}, httpapi.New(httpapi.KindInvalidClientID)
	}

	// 4. Timestamp skew
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		g.deny(ctx, "invalid_timestamp", sourceIP, clientID)
		return Info{}, Result{}, httpapi.New(httpapi.KindInvalidTimestamp)
	}
	now := time.Now()
	skew := now.Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > timestampSkew {
		g.deny(ctx, "invalid_timestamp", sourceIP, clientID)
		return Info{}, Result{}, httpapi.New(httpapi.KindInvalidTimestamp)
	}

	// 5. Nonce freshness
	if fresh := g.nonces.CheckAndAdd(clientID + ":" + nonce); !fresh {
		g.deny(ctx, "nonce_reused", sourceIP, clientID)
		return Info{}, Result{}, httpapi.New(httpapi.KindNonceReused)
	}

	// 6. Signature
	pathWithQuery := r.URL.RequestURI()
	if !VerifySignature(r.Method, pathWithQuery, timestamp, nonce, body, []byte(rec.ClientSecret), signature) {
		g.deny(ctx, "invalid_signature", sourceIP, clientID)
		return Info{}, Result{}, httpapi.New(httpapi.KindInvalidSignature)
	}

	// 7. Rate limit
	res := g.limiter.Allow(clientID, now)
	if !res.Allowed {
		g.deny(ctx, "rate_limited", sourceIP, clientID)
		return Info{}, res, httpapi.New(httpapi.KindRateLimited)
	}

	return Info{ClientID: clientID, SourceIP: sourceIP}, res, nil
}

func directPeerIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// RateLimitHeaders is exposed so the httpapi layer can write
// X-RateLimit-*/Retry-After on a 429, without authgate importing net/http
// response-writing concerns beyond what Middleware itself needs.
func RateLimitHeaders(w http.ResponseWriter, res Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rateLimitMax))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	if res.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
	}
}
