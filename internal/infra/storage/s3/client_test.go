package s3

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Options{Bucket: "b"}, nil)
	require.Error(t, err)
	_, err = NewClient(Options{Endpoint: "http://localhost:9000"}, nil)
	require.Error(t, err)

	c, err := NewClient(Options{
		Endpoint:       "http://minio:9000",
		PublicEndpoint: "https://files.example.com",
		Bucket:         "transcripts",
		AccessKey:      "k",
		SecretKey:      "s",
	}, nil)
	require.NoError(t, err)
	require.Equal(t, defaultLinkTTL, c.linkTTL)
	require.NotSame(t, c.client, c.signer)
}

func TestParseEndpoint(t *testing.T) {
	require.Equal(t, "minio:9000", parseEndpoint("http://minio:9000"))
	require.Equal(t, "minio:9000", parseEndpoint("minio:9000"))
}
