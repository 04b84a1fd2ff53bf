package remote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/moznion/go-optional"
	"github.com/rs/zerolog"
)

// Fingerprint is the content digest shared by the checker and the loader.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Checker fetches a resource in full and digests it. Downloading the whole
// body keeps the digest identical to the one stored with cached datasets.
type Checker struct {
	client *Client
	log    *zerolog.Logger
}

// NewChecker creates a Checker sharing client's breakers and backoff.
func NewChecker(client *Client) *Checker {
	return &Checker{client: client, log: client.log}
}

// Check returns the digest of url, or None when it could not be fetched.
func (c *Checker) Check(ctx context.Context, url string) optional.Option[string] {
	body, err := c.client.Get(ctx, url)
	if err != nil {
		c.log.Warn().Err(err).Str("url", url).Msg("remote: fingerprint unavailable")
		return optional.None[string]()
	}
	return optional.Some(Fingerprint(body))
}
