// Package cas mirrors anchored documents into IPFS. Mirroring is optional:
// anchoring never depends on the content store being reachable.
package cas

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/bluele/gcache"
	gocid "github.com/ipfs/go-cid"
	shell "github.com/ipfs/go-ipfs-api"
	mh "github.com/multiformats/go-multihash"
	"github.com/rs/zerolog"

	"github.com/pushchain/credential-anchor/anchorClient/config"
	anchorerrors "github.com/pushchain/credential-anchor/anchorClient/errors"
)

const (
	defaultCacheSize  = 1000
	defaultGatewayURL = "https://ipfs.io/ipfs/"

	// Documents up to one default chunk are stored as a single raw block, so
	// their CID can be computed locally.
	singleBlockLimit = 256 * 1024
)

// MirrorResult describes a mirrored document.
type MirrorResult struct {
	CID        string
	GatewayURL string
	Pinned     bool
}

// Client writes documents to IPFS and reads them back by CID.
type Client struct {
	ipfs       *shell.Shell
	cache      gcache.Cache
	gatewayURL string
	pin        bool
	logger     zerolog.Logger
}

// New creates an IPFS client from the content store settings.
func New(cfg config.IPFSConfig, logger zerolog.Logger) *Client {
	ipfs := shell.NewShell(cfg.APIURL)
	if cfg.TimeoutSeconds > 0 {
		ipfs.SetTimeout(cfg.Timeout())
	}

	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	gatewayURL := cfg.GatewayURL
	if gatewayURL == "" {
		gatewayURL = defaultGatewayURL
	}

	c := &Client{
		ipfs:       ipfs,
		gatewayURL: gatewayURL,
		pin:        cfg.Pin,
		logger:     logger.With().Str("component", "cas_ipfs").Logger(),
	}

	// Content behind a CID never changes, so cached reads never go stale.
	c.cache = gcache.New(cacheSize).LRU().LoaderFunc(func(key interface{}) (interface{}, error) {
		content, err := c.cat(key.(string))
		if err != nil {
			return nil, err
		}
		c.logger.Debug().Str("cid", key.(string)).Msg("cached content")
		return content, nil
	}).Build()

	return c
}

// Put adds content to IPFS and returns its CIDv1.
func (c *Client) Put(content []byte) (string, error) {
	if len(content) == 0 {
		return "", anchorerrors.NewContentStoreError("refusing to store empty content", nil)
	}

	cid, err := c.ipfs.Add(bytes.NewReader(content), shell.CidVersion(1), shell.Pin(false))
	if err != nil {
		if strings.Contains(err.Error(), "command not found") {
			return "", anchorerrors.NewContentStoreError("ipfs node does not accept writes", err)
		}
		return "", anchorerrors.NewContentStoreError("failed to add content to ipfs", err)
	}

	if len(content) <= singleBlockLimit {
		expected, err := ExpectedCID(content)
		if err == nil && expected != cid {
			return "", anchorerrors.NewContentStoreError("ipfs returned an unexpected cid", nil).
				WithContext("cid", cid).
				WithContext("expected_cid", expected)
		}
	}

	if err := c.cache.Set(cid, content); err != nil {
		c.logger.Warn().Err(err).Str("cid", cid).Msg("failed to cache written content")
	}

	c.logger.Debug().Str("cid", cid).Int("size", len(content)).Msg("added content to ipfs")
	return cid, nil
}

// Get returns the content stored under cid.
func (c *Client) Get(cid string) ([]byte, error) {
	if !IsValidCID(cid) {
		return nil, anchorerrors.NewContentStoreError(fmt.Sprintf("value [%s] is not a CID", cid), nil)
	}

	content, err := c.cache.Get(cid)
	if err != nil {
		return nil, err
	}
	return content.([]byte), nil
}

// Pin pins cid on the connected node.
func (c *Client) Pin(cid string) error {
	if !IsValidCID(cid) {
		return anchorerrors.NewContentStoreError(fmt.Sprintf("value [%s] is not a CID", cid), nil)
	}
	if err := c.ipfs.Pin(cid); err != nil {
		return anchorerrors.NewContentStoreError("failed to pin content", err).WithContext("cid", cid)
	}
	return nil
}

// GatewayURL returns the public retrieval URL of cid.
func (c *Client) GatewayURL(cid string) string {
	return strings.TrimSuffix(c.gatewayURL, "/") + "/" + cid
}

// Mirror stores content, pins it when configured and returns where it can
// be fetched. A pin failure still returns the CID alongside the error.
func (c *Client) Mirror(content []byte) (*MirrorResult, error) {
	cid, err := c.Put(content)
	if err != nil {
		return nil, err
	}

	result := &MirrorResult{CID: cid, GatewayURL: c.GatewayURL(cid)}
	if c.pin {
		if err := c.Pin(cid); err != nil {
			return result, err
		}
		result.Pinned = true
	}
	return result, nil
}

func (c *Client) cat(cid string) ([]byte, error) {
	reader, err := c.ipfs.Cat(cid)
	if err != nil {
		return nil, anchorerrors.NewContentStoreError("failed to read content from ipfs", err).WithContext("cid", cid)
	}
	defer c.closeAndLog(reader)

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, anchorerrors.NewContentStoreError("failed to read content from ipfs", err).WithContext("cid", cid)
	}

	if err := verifyRawBlock(cid, content); err != nil {
		return nil, err
	}
	return content, nil
}

func (c *Client) closeAndLog(rc io.Closer) {
	if err := rc.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to close reader")
	}
}

// ExpectedCID computes the CIDv1 (raw codec, sha2-256) of a single-block document.
func ExpectedCID(content []byte) (string, error) {
	prefix := gocid.Prefix{
		Version:  1,
		Codec:    gocid.Raw,
		MhType:   mh.SHA2_256,
		MhLength: -1,
	}
	cid, err := prefix.Sum(content)
	if err != nil {
		return "", err
	}
	return cid.String(), nil
}

// IsValidCID returns true if value passed in is a valid CID.
func IsValidCID(value string) bool {
	cid, err := gocid.Decode(value)
	if err != nil {
		return false
	}
	return cid.String() == value
}

// verifyRawBlock checks fetched bytes against raw-codec CIDs. Other codecs
// describe DAG nodes rather than the bytes themselves and are not checked.
func verifyRawBlock(value string, content []byte) error {
	cid, err := gocid.Decode(value)
	if err != nil || cid.Prefix().Codec != gocid.Raw {
		return nil
	}
	sum, err := cid.Prefix().Sum(content)
	if err != nil {
		return anchorerrors.NewContentStoreError("failed to hash fetched content", err)
	}
	if !sum.Equals(cid) {
		return anchorerrors.NewContentStoreError("fetched content does not match its cid", nil).WithContext("cid", value)
	}
	return nil
}
