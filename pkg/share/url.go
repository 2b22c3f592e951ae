// Package share turns beats into links and short texts that players can send
// each other, and delivers them through whatever channel is available.
package share

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/james-see/beatgrid/pkg/pattern"
)

// QueryParam carries the encoded beat in share links
const QueryParam = "beat"

// ErrInvalidLink is returned when a link or payload cannot be decoded
var ErrInvalidLink = errors.New("invalid share link")

// Beat is the shared tuple
type Beat struct {
	Name    string
	BPM     int
	Pattern pattern.Pattern
}

type payload struct {
	Name string `json:"name"`
	BPM  int    `json:"bpm"`
	Grid string `json:"grid"`
}

// Encode serialises a beat to base64-encoded JSON with a compact 112-character grid
func Encode(b Beat) (string, error) {
	data, err := json.Marshal(payload{
		Name: b.Name,
		BPM:  pattern.ClampBPM(b.BPM),
		Grid: b.Pattern.Bits(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal share payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func decodeBase64(s string) ([]byte, error) {
	// an unescaped '+' in a pasted link arrives as a space
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "+")
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if data, err := enc.DecodeString(s); err == nil {
			return data, nil
		}
	}
	return nil, fmt.Errorf("%w: payload is not base64", ErrInvalidLink)
}

// Decode inverts Encode
func Decode(s string) (Beat, error) {
	data, err := decodeBase64(s)
	if err != nil {
		return Beat{}, err
	}

	var pl payload
	if err := json.Unmarshal(data, &pl); err != nil {
		return Beat{}, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	p, err := pattern.ParseBits(pl.Grid)
	if err != nil {
		return Beat{}, fmt.Errorf("%w: %w", ErrInvalidLink, err)
	}

	bpm := pl.BPM
	if bpm == 0 {
		bpm = pattern.DefaultBPM
	}
	return Beat{Name: pl.Name, BPM: pattern.ClampBPM(bpm), Pattern: p}, nil
}

// EncodeURL appends the encoded beat to base as the beat query parameter
func EncodeURL(base string, b Beat) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	enc, err := Encode(b)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(QueryParam, enc)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// DecodeURL extracts and decodes the beat parameter of a share link
func DecodeURL(raw string) (Beat, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Beat{}, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	enc := u.Query().Get(QueryParam)
	if enc == "" {
		return Beat{}, fmt.Errorf("%w: missing %q parameter", ErrInvalidLink, QueryParam)
	}
	return Decode(enc)
}
