package canonical

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/pushchain/credential-anchor/anchorClient/common"
)

// IdentityDelimiter separates the fields hashed into an anchor identifier.
const IdentityDelimiter = "|"

// DeriveID returns SHA-256(issuer | subject | title | timestamp) with the
// timestamp rendered as base-10 Unix seconds. Identical inputs always give
// the identical identifier, which makes re-anchoring the same fact idempotent
// at the contract layer.
func DeriveID(issuer, subject, title string, timestamp int64) common.AnchorID {
	payload := strings.Join([]string{
		issuer,
		subject,
		title,
		strconv.FormatInt(timestamp, 10),
	}, IdentityDelimiter)
	return common.AnchorID(sha256.Sum256([]byte(payload)))
}

// NormalizeTimestamp converts the timestamp representations callers hand us
// (time.Time, RFC3339 or YYYY-MM-DD strings, integer seconds) to Unix seconds.
func NormalizeTimestamp(v interface{}) (int64, error) {
	switch t := v.(type) {
	case nil:
		return 0, fmt.Errorf("timestamp is required")
	case time.Time:
		if t.IsZero() {
			return 0, fmt.Errorf("timestamp is required")
		}
		return t.Unix(), nil
	case *time.Time:
		if t == nil || t.IsZero() {
			return 0, fmt.Errorf("timestamp is required")
		}
		return t.Unix(), nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, fmt.Errorf("timestamp is required")
		}
		if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
			return secs, nil
		}
		parsed, err := cast.ToTimeInDefaultLocationE(s, time.UTC)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		return parsed.Unix(), nil
	default:
		secs, err := cast.ToInt64E(v)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %v: %w", v, err)
		}
		return secs, nil
	}
}
