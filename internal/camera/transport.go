package camera

import (
	"crypto/tls"
	"net/http"
	"sync"
)

var (
	insecureOnce   sync.Once
	insecureClientInstance *http.Client
)

// insecureClient is used only when a registered CameraConfig explicitly
// sets verify_ssl=false — cameras are frequently self-signed on a LAN.
func insecureClient() *http.Client {
	insecureOnce.Do(func() {
		insecureClientInstance = &http.Client{
			Timeout: snapshotFetchTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}
	})
	return insecureClientInstance
}
