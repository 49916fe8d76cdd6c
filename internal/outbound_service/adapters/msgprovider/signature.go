package msgprovider

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"sort"
)

// BuildSignature computes the provider's webhook signature: HMAC-SHA1 over
// the full request URL concatenated with every form parameter as key+value
// in byte-sorted key order, base64 encoded.
func BuildSignature(authToken, requestURL string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(requestURL))
	for _, k := range keys {
		mac.Write([]byte(k))
		mac.Write([]byte(params[k]))
	}
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ValidateSignature verifies a webhook signature in constant time.
func ValidateSignature(authToken, requestURL string, params map[string]string, signature string) bool {
	expected := BuildSignature(authToken, requestURL, params)
	return hmac.Equal([]byte(expected), []byte(signature))
}
