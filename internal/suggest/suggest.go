// Package suggest implements the remote suggestion client of spec §4.9: an
// HTTP adapter to an external Google-Japanese-Input-shaped JSON endpoint and
// a suggest-shaped XML endpoint, both percent-encoding the midashi, applying
// a millisecond timeout, and filtering candidates by okuri-tail and
// hiragana/katakana/half-width-katakana composition.
//
// Grounded on src/skk/yaskkserv2/request.rs's request/request_google_*
// functions for the filtering and URL-building rules, and on the teacher's
// use of valyala/fasthttp for outbound HTTP and json-iterator/go for
// decoding untyped JSON payloads (cmd-rpc-server-car.go).
package suggest

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
	"k8s.io/klog/v2"

	"github.com/wachikun/yaskkserv2/internal/yaskkerr"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	japaneseInputPath = "www.google.com/transliterate?langpair=ja-Hira|ja&text="
	suggestPath       = "www.google.com/complete/search?output=toolbar&ie=utf-8&oe=utf-8&q="
)

// Mode selects which remote endpoint Client.Query consults, mirroring the
// CLI's google-japanese-input/google-suggest gating (spec §6.5).
type Mode int

const (
	ModeJapaneseInput Mode = iota
	ModeSuggest
)

// Config parameterizes one Client.
type Config struct {
	Mode                     Mode
	UseHTTP                  bool // true selects http:// instead of https://
	TimeoutMilliseconds      int
	MaxCandidatesLength      int
	IncludeHiraganaOnly      bool
	IncludeKatakanaOnly      bool
	IncludeHalfwidthKanaOnly bool
}

// Client is the lookup engine's optional, best-effort remote suggestion
// source (spec §4.6's RemoteClient).
type Client struct {
	http   *fasthttp.Client
	scheme string
	cfg    Config
}

func New(cfg Config) *Client {
	scheme := "https://"
	if cfg.UseHTTP {
		scheme = "http://"
	}
	return &Client{
		http:   &fasthttp.Client{Name: "yaskkserv2"},
		scheme: scheme,
		cfg:    cfg,
	}
}

// Query implements lookup.RemoteClient by dispatching to whichever remote
// endpoint this Client was configured for.
func (c *Client) Query(ctx context.Context, midashiUtf8 []byte) ([][]byte, error) {
	switch c.cfg.Mode {
	case ModeSuggest:
		return c.Suggest(ctx, midashiUtf8)
	default:
		return c.JapaneseInput(ctx, midashiUtf8, c.cfg.MaxCandidatesLength,
			c.cfg.IncludeHiraganaOnly, c.cfg.IncludeKatakanaOnly, c.cfg.IncludeHalfwidthKanaOnly)
	}
}

// JapaneseInput implements request_google_japanese_input: GET the
// translation JSON endpoint and flatten its nested candidate arrays.
func (c *Client) JapaneseInput(ctx context.Context, midashi []byte, maxCandidates int, includeHiragana, includeKatakana, includeHankakuKatakana bool) ([][]byte, error) {
	body, err := c.get(ctx, japaneseInputPath, midashi)
	if err != nil {
		return nil, err
	}

	var parsed []interface{}
	if err := jsonAPI.Unmarshal(body, &parsed); err != nil {
		return nil, yaskkerr.Wrap(yaskkerr.Json, "decode japanese_input response", err)
	}
	if len(parsed) == 0 {
		return nil, yaskkerr.New(yaskkerr.Request, "japanese_input: empty response")
	}
	first, ok := parsed[0].([]interface{})
	if !ok || len(first) < 2 {
		return nil, yaskkerr.New(yaskkerr.Request, "japanese_input: unexpected shape")
	}

	result := japaneseInputResult(parsed, includeHiragana, includeKatakana, includeHankakuKatakana)
	if len(result) > maxCandidates {
		result = result[:maxCandidates]
	}
	if len(result) == 0 {
		return nil, yaskkerr.New(yaskkerr.Request, "japanese_input: no candidates survived filtering")
	}
	return result, nil
}

// japaneseInputResult generalizes get_google_japanese_input_result_{2,3,4}:
// each top-level array entry i is itself a 2-element [tailOrKey, [members]]
// pair; the cartesian product of every entry's member list is built, with
// the final entry's members only appended when shouldAddTailCandidates says
// the midashi has no embedded okuri particle. An arity other than 2-4
// falls back to the flat single-list case (the "_" arm in request.rs).
func japaneseInputResult(parsed []interface{}, includeHiragana, includeKatakana, includeHankakuKatakana bool) [][]byte {
	n := len(parsed)
	if n < 2 || n > 4 {
		return flatJapaneseInputResult(parsed, includeHiragana, includeKatakana, includeHankakuKatakana)
	}

	lists := make([][][]byte, n)
	for i := 0; i < n; i++ {
		entry, ok := parsed[i].([]interface{})
		if !ok || len(entry) < 2 {
			return nil
		}
		members, _ := entry[1].([]interface{})
		for _, m := range members {
			if s, ok := m.(string); ok {
				lists[i] = append(lists[i], []byte(s))
			}
		}
	}
	tailEntry, _ := parsed[n-1].([]interface{})
	var tail []byte
	if len(tailEntry) >= 1 {
		if s, ok := tailEntry[0].(string); ok {
			tail = []byte(s)
		}
	}
	addTail := shouldAddTailCandidates(tail)

	var result [][]byte
	var walk func(i int, prefix [][]byte)
	walk = func(i int, prefix [][]byte) {
		if i == n {
			var joined []byte
			limit := n
			if !addTail {
				limit = n - 1
			}
			for j := 0; j < limit; j++ {
				joined = append(joined, prefix[j]...)
			}
			if !shouldAdd([][]byte{joined}, includeHiragana, includeKatakana, includeHankakuKatakana) {
				return
			}
			result = append(result, joined)
			return
		}
		for _, m := range lists[i] {
			walk(i+1, append(prefix, m))
		}
	}
	walk(0, nil)
	return result
}

func flatJapaneseInputResult(parsed []interface{}, includeHiragana, includeKatakana, includeHankakuKatakana bool) [][]byte {
	first, ok := parsed[0].([]interface{})
	if !ok || len(first) < 2 {
		return nil
	}
	members, _ := first[1].([]interface{})
	var result [][]byte
	for _, m := range members {
		s, ok := m.(string)
		if !ok {
			continue
		}
		b := []byte(s)
		if shouldAdd([][]byte{b}, includeHiragana, includeKatakana, includeHankakuKatakana) {
			result = append(result, b)
		}
	}
	return result
}

// Suggest implements request_google_suggest: GET the suggest XML endpoint
// and extract every `suggestion data="..."` attribute value with a minimal
// scan rather than a full XML parser, per spec §4.9.
func (c *Client) Suggest(ctx context.Context, midashi []byte) ([][]byte, error) {
	body, err := c.get(ctx, suggestPath, midashi)
	if err != nil {
		return nil, err
	}

	result := parseSuggestBody(body)
	if len(result) == 0 {
		return nil, yaskkerr.New(yaskkerr.Request, "suggest: no candidates in response")
	}
	return result, nil
}

// parseSuggestBody extracts every `suggestion data="..."` attribute value
// from a toolbar-xml suggest response with a minimal scan rather than a
// full XML parser, per spec §4.9.
func parseSuggestBody(body []byte) [][]byte {
	const marker = `suggestion data="`
	var result [][]byte
	for _, segment := range strings.Split(string(body), "<") {
		if !strings.HasPrefix(segment, marker) {
			continue
		}
		trimmed := strings.TrimSuffix(strings.TrimPrefix(segment, marker), `"/>`)
		if i := strings.IndexAny(trimmed, " \t"); i >= 0 {
			trimmed = trimmed[:i]
		}
		if trimmed != "" {
			result = append(result, []byte(trimmed))
		}
	}
	return result
}

func (c *Client) get(ctx context.Context, path string, midashi []byte) ([]byte, error) {
	encoded := url.QueryEscape(string(midashi))
	target := c.scheme + path + encoded

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(target)
	req.Header.SetMethod(fasthttp.MethodGet)

	timeout := time.Duration(c.cfg.TimeoutMilliseconds) * time.Millisecond
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	if err := c.http.DoTimeout(req, resp, timeout); err != nil {
		klog.V(2).Infof("suggest: request to %s failed: %v", path, err)
		return nil, yaskkerr.Wrap(yaskkerr.RemoteRequest, "remote suggestion request", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, yaskkerr.New(yaskkerr.RemoteRequest, fmt.Sprintf("remote suggestion status %d %s", resp.StatusCode(), resp.Header.StatusMessage()))
	}
	return append([]byte(nil), resp.Body()...), nil
}
