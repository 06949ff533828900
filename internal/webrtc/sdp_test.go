package webrtc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleOffer = "v=0\r\n" +
	"o=- 46117317 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"a=group:BUNDLE 0\r\n" +
	"m=application 9 UDP/DTLS/SCTP webrtc-datachannel\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:0\r\n" +
	"a=sctp-port:5000\r\n"

func TestValidateOfferAcceptsWellFormedSDP(t *testing.T) {
	sd, err := ValidateOffer(sampleOffer)
	require.NoError(t, err)
	assert.Len(t, sd.MediaDescriptions, 1)
}

func TestValidateOfferRejectsEmpty(t *testing.T) {
	_, err := ValidateOffer("")
	assert.ErrorIs(t, err, errEmptySDP)
}

func TestValidateOfferRejectsNoMediaDescriptions(t *testing.T) {
	noMedia := "v=0\r\no=- 1 1 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"
	_, err := ValidateOffer(noMedia)
	assert.ErrorIs(t, err, errNoMediaDescriptions)
}

func TestValidateOfferRejectsGarbage(t *testing.T) {
	_, err := ValidateOffer("not-an-sdp-at-all")
	assert.Error(t, err)
}
