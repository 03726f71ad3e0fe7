package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"ipgeo-ws/internal/lookup"
	wserrors "ipgeo-ws/pkg/errors"
)

// ValidAPIs lists the upstream providers in the order reported to clients.
var ValidAPIs = []string{"extremeip", "ipinfo", "ipregistry", "ipstack", "nange", "nordvpn"}

const invalidJSONMessage = `Invalid JSON. Expected: {"api":"...","ip":"...","id":"...(optional)"}`

// Fetcher performs the upstream lookup. *lookup.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, api, ip string) (json.RawMessage, error)
}

// Request is the inbound proxy message. API and IP are required strings;
// ID may be absent or null.
type Request struct {
	API *string
	IP  *string
	ID  *string
}

// Response is the outbound proxy message. ID is omitted unless the request
// carried one.
type Response struct {
	API  string          `json:"api"`
	Data json.RawMessage `json:"data"`
	ID   *string         `json:"id,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Proxy forwards validated lookup requests to a Fetcher. Failures are folded
// into the reply; Handle always produces one.
type Proxy struct {
	fetcher Fetcher
}

func NewProxy(fetcher Fetcher) *Proxy {
	return &Proxy{fetcher: fetcher}
}

func (p *Proxy) Handle(ctx context.Context, text string) (string, bool) {
	req, err := ParseRequest(text)
	if err != nil {
		return errorReply(err), true
	}

	data := p.fetch(ctx, *req.API, *req.IP)
	return encode(Response{API: *req.API, Data: data, ID: req.ID}), true
}

// ParseRequest decodes and validates an inbound frame. Field names match
// exactly and a repeated api, ip or id is rejected. The returned error wraps
// ErrInvalidRequest or ErrInvalidAPI.
func ParseRequest(text string) (*Request, error) {
	fields, err := decodeObject(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wserrors.ErrInvalidRequest, err)
	}

	var req Request
	if req.API, err = stringField(fields, "api", true); err != nil {
		return nil, fmt.Errorf("%w: %v", wserrors.ErrInvalidRequest, err)
	}
	if req.IP, err = stringField(fields, "ip", true); err != nil {
		return nil, fmt.Errorf("%w: %v", wserrors.ErrInvalidRequest, err)
	}
	if req.ID, err = stringField(fields, "id", false); err != nil {
		return nil, fmt.Errorf("%w: %v", wserrors.ErrInvalidRequest, err)
	}

	if !slices.Contains(ValidAPIs, *req.API) {
		return nil, fmt.Errorf("%w: %q", wserrors.ErrInvalidAPI, *req.API)
	}
	return &req, nil
}

var requestFields = []string{"api", "ip", "id"}

// decodeObject reads a single JSON object into its raw members. Unknown
// members are kept but never inspected.
func decodeObject(text string) (map[string]json.RawMessage, error) {
	dec := json.NewDecoder(strings.NewReader(text))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("expected a JSON object")
	}

	fields := make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		if _, dup := fields[key]; dup && slices.Contains(requestFields, key) {
			return nil, fmt.Errorf("duplicate field %q", key)
		}
		fields[key] = raw
	}

	// closing brace
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON object")
	}
	return fields, nil
}

// stringField returns the named member as a string. An absent or null
// member is an error only when required.
func stringField(fields map[string]json.RawMessage, name string, required bool) (*string, error) {
	raw, ok := fields[name]
	if !ok || string(raw) == "null" {
		if required {
			return nil, fmt.Errorf("missing field %q", name)
		}
		return nil, nil
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("field %q: %v", name, err)
	}
	return &v, nil
}

func (p *Proxy) fetch(ctx context.Context, api, ip string) json.RawMessage {
	data, err := p.fetcher.Fetch(ctx, api, ip)
	if err == nil {
		return data
	}

	var perr *lookup.ParseError
	var rerr *lookup.RequestError
	switch {
	case errors.As(err, &perr):
		return json.RawMessage(encode(errorBody{Error: "Failed to parse response: " + perr.Error()}))
	case errors.As(err, &rerr):
		return json.RawMessage(encode(errorBody{Error: "Request failed: " + rerr.Error()}))
	default:
		return json.RawMessage(encode(errorBody{Error: "Request failed: " + err.Error()}))
	}
}

func errorReply(err error) string {
	if errors.Is(err, wserrors.ErrInvalidAPI) {
		return encode(errorBody{Error: "Invalid API. Valid options: " + strings.Join(ValidAPIs, ", ")})
	}
	return encode(errorBody{Error: invalidJSONMessage})
}

// encode writes compact JSON without HTML escaping so upstream bodies pass
// through untouched.
func encode(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return `{"error":"` + err.Error() + `"}`
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
