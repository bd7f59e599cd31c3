package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/nukevideo/nukevideo/internal/config"
	"github.com/nukevideo/nukevideo/internal/models"
)

// ErrNoTokenSecret indicates link signing is not configured.
var ErrNoTokenSecret = errors.New("vod token secret not configured")

// VodService signs playback URLs with an expiring HMAC token scoped to
// one media item's HLS prefix.
type VodService struct {
	secret    []byte
	tokenName string
	window    time.Duration
}

// NewVodService creates a VodService from configuration. The token secret
// is hex-encoded.
func NewVodService(cfg config.VodConfig) (*VodService, error) {
	if cfg.TokenSecret == "" {
		return nil, ErrNoTokenSecret
	}
	secret, err := hex.DecodeString(cfg.TokenSecret)
	if err != nil {
		return nil, fmt.Errorf("decoding vod token secret: %w", err)
	}
	return &VodService{
		secret:    secret,
		tokenName: cfg.TokenName,
		window:    cfg.TokenWindow,
	}, nil
}

// SignURL returns baseURL with the auth token appended as a query
// parameter. A non-positive ttl falls back to the configured window.
// Custom fields are folded into the signed token in sorted key order.
func (s *VodService) SignURL(baseURL string, itemID models.ULID, ttl time.Duration, custom map[string]string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}

	token := s.Token(itemID, ttl, custom)

	q := u.Query()
	q.Set(s.tokenName, token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Token builds the signed token for one media item's playback prefix:
// exp=<unix>~acl=/hls/<ulid>/*[~k=v...]~hmac=<hex>.
func (s *VodService) Token(itemID models.ULID, ttl time.Duration, custom map[string]string) string {
	if ttl <= 0 {
		ttl = s.window
	}
	exp := time.Now().Add(ttl).Unix()
	acl := fmt.Sprintf("/hls/%s/*", itemID)

	parts := []string{
		fmt.Sprintf("exp=%d", exp),
		fmt.Sprintf("acl=%s", acl),
	}

	keys := make([]string, 0, len(custom))
	for k := range custom {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, custom[k]))
	}

	token := strings.Join(parts, "~")

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(token))
	return token + "~hmac=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a token's signature and expiry against the given path.
func (s *VodService) Verify(token, path string, now time.Time) bool {
	idx := strings.LastIndex(token, "~hmac=")
	if idx < 0 {
		return false
	}
	payload, sig := token[:idx], token[idx+len("~hmac="):]

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return false
	}

	var acl string
	var exp int64
	for _, part := range strings.Split(payload, "~") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		switch k {
		case "exp":
			fmt.Sscanf(v, "%d", &exp)
		case "acl":
			acl = v
		}
	}

	if exp <= now.Unix() {
		return false
	}
	if prefix, ok := strings.CutSuffix(acl, "*"); ok {
		return strings.HasPrefix(path, prefix)
	}
	return acl == path
}
