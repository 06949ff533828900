package webrtc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// statusError carries the upstream go2rtc HTTP status so callers can branch
// on it (currently: retry an offer once after a 404 auto-registers the
// stream).
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("go2rtc error: status=%d, body=%s", e.Code, e.Body)
}

// Go2RTCClient is a thin HTTP wrapper around the local go2rtc media server:
// one do() skeleton for every call, a WebRTC offer/answer exchange endpoint,
// an ICE-candidate endpoint, and a stream auto-registration endpoint used
// when go2rtc doesn't yet know the requested stream name.
type Go2RTCClient struct {
	BaseURL    string
	HTTPClient *http.Client
	log        zerolog.Logger
}

func NewGo2RTCClient(baseURL string, log zerolog.Logger) *Go2RTCClient {
	return &Go2RTCClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		log:        log.With().Str("component", "go2rtc_client").Logger(),
	}
}

func (c *Go2RTCClient) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		sample := make([]byte, 512)
		n, _ := resp.Body.Read(sample)
		return &statusError{Code: resp.StatusCode, Body: string(sample[:n])}
	}

	if out != nil {
		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		c.log.Debug().Str("path", path).Msg("go2rtc response received")
		return json.Unmarshal(bodyBytes, out)
	}
	return nil
}

// Offer exchanges a WebRTC SDP offer for go2rtc's answer, mirroring
// go2rtc's /api/webrtc endpoint contract. entityID is the go2rtc stream
// name; streamSource is the camera's native stream URL, used only if
// go2rtc doesn't yet know entityID and the stream must be auto-registered.
// On a 404 the stream is registered via PUT /api/streams and the offer is
// retried exactly once.
func (c *Go2RTCClient) Offer(ctx context.Context, entityID, streamSource, sdpOffer string) (string, error) {
	answer, err := c.offerOnce(ctx, entityID, sdpOffer)
	if err == nil {
		return answer, nil
	}

	var statusErr *statusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusNotFound {
		return "", err
	}

	if err := c.registerStream(ctx, entityID, streamSource); err != nil {
		return "", fmt.Errorf("auto-register stream %s: %w", entityID, err)
	}
	return c.offerOnce(ctx, entityID, sdpOffer)
}

func (c *Go2RTCClient) offerOnce(ctx context.Context, src, sdpOffer string) (string, error) {
	var resp struct {
		SDP  string `json:"sdp"`
		Type string `json:"type"`
	}
	body := map[string]string{"sdp": sdpOffer, "type": "offer"}
	if err := c.do(ctx, http.MethodPost, "/api/webrtc?src="+src, body, &resp); err != nil {
		return "", err
	}
	return resp.SDP, nil
}

// registerStream tells go2rtc to serve name from src, used when an offer
// fails with 404 because go2rtc has no prior knowledge of the stream.
func (c *Go2RTCClient) registerStream(ctx context.Context, name, src string) error {
	path := "/api/streams?name=" + url.QueryEscape(name) + "&src=" + url.QueryEscape(src)
	return c.do(ctx, http.MethodPut, path, nil, nil)
}

// ICECandidate forwards a trickled ICE candidate to go2rtc for the given
// stream source.
func (c *Go2RTCClient) ICECandidate(ctx context.Context, src, candidate string) error {
	body := map[string]string{"candidate": candidate}
	return c.do(ctx, http.MethodPost, "/api/webrtc/ice?src="+src, body, nil)
}

// Hangup tears down go2rtc's side of the session.
func (c *Go2RTCClient) Hangup(ctx context.Context, src string) error {
	return c.do(ctx, http.MethodDelete, "/api/webrtc?src="+src, nil, nil)
}
