package signature

import (
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-ingest/core"
)

// SchemeV1 is the only digest scheme currently produced: HMAC-SHA256 over
// "{timestamp}.{body}" encoded as lowercase hex.
const SchemeV1 = "v1"

// Header is the parsed signature header: a unix timestamp plus one or more
// scheme-tagged digests. Multiple v1 digests appear while the sender rotates
// secrets.
type Header struct {
	Timestamp int64
	Digests   []Digest
}

type Digest struct {
	Scheme string
	Value  []byte
}

// ParseHeader parses a "t=<unix>,v1=<hex>[,v1=<hex>...]" header value.
// Unknown schemes are retained so future scheme additions do not break
// verification of the v1 entries next to them.
func ParseHeader(value string) (Header, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Header{}, malformed("signature: header is required", nil)
	}

	parsed := Header{}
	seenTimestamp := false
	for _, field := range strings.Split(value, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		key, raw, found := strings.Cut(field, "=")
		if !found {
			return Header{}, malformed("signature: header field is not key=value", map[string]any{
				"field": field,
			})
		}
		key = strings.TrimSpace(key)
		raw = strings.TrimSpace(raw)
		switch key {
		case "t":
			if seenTimestamp {
				return Header{}, malformed("signature: duplicate timestamp field", nil)
			}
			ts, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return Header{}, malformed("signature: timestamp is not an integer", map[string]any{
					"timestamp": raw,
				})
			}
			parsed.Timestamp = ts
			seenTimestamp = true
		default:
			decoded, err := hex.DecodeString(raw)
			if err != nil {
				return Header{}, malformed("signature: digest is not valid hex", map[string]any{
					"scheme": key,
				})
			}
			parsed.Digests = append(parsed.Digests, Digest{Scheme: key, Value: decoded})
		}
	}

	if !seenTimestamp {
		return Header{}, malformed("signature: header has no timestamp field", nil)
	}
	if len(parsed.SchemeDigests(SchemeV1)) == 0 {
		return Header{}, malformed("signature: header has no digest fields", nil)
	}
	return parsed, nil
}

// SchemeDigests returns the digests carrying the given scheme tag.
func (h Header) SchemeDigests(scheme string) [][]byte {
	var out [][]byte
	for _, digest := range h.Digests {
		if digest.Scheme == scheme {
			out = append(out, digest.Value)
		}
	}
	return out
}

func malformed(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorMalformedSignature)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}
