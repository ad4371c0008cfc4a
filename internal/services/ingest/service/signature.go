package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	perr "gitpulse/internal/platform/errors"
)

// VerifySignature implements domain.FeedPort
// The provider signs the raw body with HMAC-SHA256 keyed by the shared
// secret and sends sha256=<hex>; comparison is constant time
func (s *Service) VerifySignature(body []byte, signature string) error {
	if len(s.secret) == 0 {
		return nil
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return perr.Forbiddenf("ingest: webhook signature mismatch")
	}
	return nil
}
