package payone

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/payone-gateway/internal/resilience"
)

// Credentials identify the merchant account towards the Payone server API.
type Credentials struct {
	MerchantID   string
	PortalID     string
	SubAccountID string
	PortalKey    string
	Mode         string // "test" or "live"
}

// Response is the normalised synchronous answer of the server API. Raw keeps
// every key-value pair the processor returned, including ones this client does
// not interpret.
type Response struct {
	Status      string
	TxID        string
	UserID      string
	RedirectURL string
	Raw         map[string]string
}

// Approved reports whether the processor accepted the request outright.
func (r Response) Approved() bool {
	return r.Status == StatusApproved
}

// Client sends merged parameter sets to the Payone server API. Credentials and
// protocol framing are injected here so builders stay free of secrets.
type Client struct {
	HTTP        *resilience.HTTPClient
	BaseURL     string
	Credentials Credentials
	Logger      zerolog.Logger
}

// Request posts the parameter set and parses the key=value response body.
// Processor-level rejections surface as *RequestError, transport failures as
// *TransportError. The call is never retried in place; for webhooks the
// processor redelivers, for synchronous requests the failure aborts the
// attempt.
func (c *Client) Request(ctx context.Context, params Params) (Response, error) {
	if c == nil || c.HTTP == nil {
		return Response{}, errors.New("payone: client not configured")
	}
	merged := c.systemParams().Merge(params)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, strings.NewReader(merged.Encode()))
	if err != nil {
		return Response{}, &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/plain")

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return Response{}, &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, &TransportError{Err: err}
	}
	parsed := ParseResponse(body)
	if parsed.Status == StatusError {
		reqErr := &RequestError{
			ErrorCode:       parsed.Raw["errorcode"],
			ErrorMessage:    parsed.Raw["errormessage"],
			CustomerMessage: parsed.Raw["customermessage"],
		}
		c.Logger.Warn().
			Str("request", merged["request"]).
			Str("error_code", reqErr.ErrorCode).
			Str("error_message", reqErr.ErrorMessage).
			Msg("payone request rejected")
		return parsed, reqErr
	}
	return parsed, nil
}

// systemParams carries the account credentials and protocol framing every
// request needs. The portal key travels as its MD5 digest, per the server API
// contract.
func (c *Client) systemParams() Params {
	return Params{
		"aid":         c.Credentials.SubAccountID,
		"mid":         c.Credentials.MerchantID,
		"portalid":    c.Credentials.PortalID,
		"key":         md5Hex(c.Credentials.PortalKey),
		"mode":        c.Credentials.Mode,
		"api_version": "3.11",
		"encoding":    "UTF-8",
	}
}

// ParseResponse decodes the newline-delimited key=value body of the server
// API. Unknown keys are preserved in Raw.
func ParseResponse(body []byte) Response {
	raw := map[string]string{}
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		raw[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return Response{
		Status:      raw["status"],
		TxID:        raw["txid"],
		UserID:      raw["userid"],
		RedirectURL: raw["redirecturl"],
		Raw:         raw,
	}
}

func md5Hex(input string) string {
	sum := md5.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}
