package webrtc

import (
	"errors"

	"github.com/pion/sdp/v3"
)

var errEmptySDP = errors.New("empty sdp offer")
var errNoMediaDescriptions = errors.New("sdp offer has no media descriptions")

// ValidateOffer parses and sanity-checks a client SDP offer before it is
// forwarded to go2rtc — untrusted SDP is never forwarded to the media
// server unparsed.
func ValidateOffer(raw string) (*sdp.SessionDescription, error) {
	if raw == "" {
		return nil, errEmptySDP
	}
	var sd sdp.SessionDescription
	if err := sd.Unmarshal([]byte(raw)); err != nil {
		return nil, err
	}
	if len(sd.MediaDescriptions) == 0 {
		return nil, errNoMediaDescriptions
	}
	return &sd, nil
}
