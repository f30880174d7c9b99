package signature

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Sign produces a header value for body at timestamp using every provided
// secret, so receivers still holding the previous secret keep verifying
// during rotation. Digest order follows secret order.
func Sign(timestamp int64, body []byte, secrets ...[]byte) (string, error) {
	if len(secrets) == 0 {
		return "", fmt.Errorf("signature: at least one secret is required")
	}
	fields := make([]string, 0, len(secrets)+1)
	fields = append(fields, "t="+strconv.FormatInt(timestamp, 10))
	for _, secret := range secrets {
		if len(secret) == 0 {
			return "", fmt.Errorf("signature: empty secret is not allowed")
		}
		digest := ComputeDigest(secret, timestamp, body)
		fields = append(fields, SchemeV1+"="+hex.EncodeToString(digest))
	}
	return strings.Join(fields, ","), nil
}
