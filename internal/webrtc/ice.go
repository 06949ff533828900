package webrtc

import "github.com/smartly/bridge/internal/config"

// IceServer is one STUN/TURN entry, shaped the way a WebRTC client's
// RTCConfiguration.iceServers expects it.
type IceServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

var fixedSTUNServers = []IceServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
}

// buildICEServers returns the fixed STUN set, appending the credential
// record's TURN server when one is configured.
func buildICEServers(rec config.Record) []IceServer {
	servers := make([]IceServer, len(fixedSTUNServers))
	copy(servers, fixedSTUNServers)
	if rec.TURN != nil && rec.TURN.URL != "" {
		servers = append(servers, IceServer{
			URLs:       []string{rec.TURN.URL},
			Username:   rec.TURN.Username,
			Credential: rec.TURN.Credential,
		})
	}
	return servers
}
