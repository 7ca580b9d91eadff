package socket

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

// CredentialStore supplies the API credentials for signed operations. The
// secret is only ever used to derive signatures and is never transmitted
// or logged.
type CredentialStore interface {
	Key() string
	Secret() string
}

// Sign derives the request signature from the canonical parameter string
// access_id=<key>&tonce=<tonce>&secret_key=<secret>.
func Sign(key, secret string, tonce int64) string {
	payload := fmt.Sprintf("access_id=%s&tonce=%d&secret_key=%s", key, tonce, secret)
	sum := md5.Sum([]byte(payload))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// NonceFunc produces the tonce for a signed request. The server rejects any
// nonce that is not strictly greater than the last one it has seen for the
// key, so a custom source must never go backwards or repeat - even across
// gaps where a value was sent but the response was lost. Supplying an
// external source is therefore a caller contract the session cannot check.
type NonceFunc func() int64

// nonceSource is the default NonceFunc: wall-clock milliseconds with a
// floor guard so two calls in the same millisecond still increase.
type nonceSource struct {
	mu   sync.Mutex
	last int64
}

func (n *nonceSource) next() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := time.Now().UnixMilli()
	if now <= n.last {
		now = n.last + 1
	}
	n.last = now
	return now
}

// signRequest builds the authentication handshake request
func signRequest(creds CredentialStore, tonce int64) Request {
	return NewRequest("server", ActionSign, false,
		creds.Key(),
		Sign(creds.Key(), creds.Secret(), tonce),
		tonce,
	)
}

// ackStatus is the body of an auth or subscribe acknowledgment
type ackStatus struct {
	Status string `json:"status"`
}
