package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/valyala/fasttemplate"

	"github.com/spance/a11ycheck/checker/definitions"
	"github.com/spance/a11ycheck/checker/helper"
	"github.com/spance/a11ycheck/constants"
	"github.com/spance/a11ycheck/utils"
)

var (
	ErrBadStatus   = errors.New("unexpected http status")
	ErrInvalidJSON = errors.New("response is not valid JSON")
)

type Verifier struct {
	client    *http.Client
	store     *Store
	differ    *Differ
	mode      definitions.VerifyMode
	endpoints []constants.Endpoint
	url       *fasttemplate.Template
	jsonDiff  bool
	out       io.Writer
}

type Option func(*Verifier)

func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) { v.client = c }
}

// WithURLTemplate overrides the endpoint URL; {port} and {path} are substituted.
func WithURLTemplate(tpl string) Option {
	return func(v *Verifier) { v.url = fasttemplate.New(tpl, "{", "}") }
}

func WithJSONDiff(enabled bool) Option {
	return func(v *Verifier) { v.jsonDiff = enabled }
}

func WithOutput(w io.Writer) Option {
	return func(v *Verifier) { v.out = w }
}

func NewVerifier(store *Store, mode definitions.VerifyMode, opts ...Option) *Verifier {
	v := &Verifier{
		client:    &http.Client{Timeout: 30 * time.Second},
		store:     store,
		differ:    NewDiffer(constants.VolatileFields),
		mode:      mode,
		endpoints: constants.Endpoints,
		url:       fasttemplate.New(constants.EndpointURLTemplate, "{", "}"),
		out:       os.Stdout,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Verifier) URL(port int, ep constants.Endpoint) string {
	return v.url.ExecuteString(map[string]any{
		"port": strconv.Itoa(port),
		"path": ep.Path,
	})
}

// Fetch GETs url and returns the body of a 200 JSON response.
func (v *Verifier) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("GET %s: read body: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: GET %s returned %d", ErrBadStatus, url, resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: GET %s", ErrInvalidJSON, url)
	}
	return body, nil
}

// WaitReady polls the first endpoint until the service answers through the forward.
func (v *Verifier) WaitReady(ctx context.Context, port int, timeout time.Duration) error {
	url := v.URL(port, v.endpoints[0])
	return helper.Poll(ctx, "service at "+url, helper.DefaultPollConfig(timeout), func(ctx context.Context) (bool, error) {
		_, err := v.Fetch(ctx, url)
		return err == nil, err
	})
}

// Verify checks every endpoint; a failing endpoint never stops the next one.
func (v *Verifier) Verify(ctx context.Context, port int) []definitions.EndpointResult {
	results := make([]definitions.EndpointResult, 0, len(v.endpoints))
	for _, ep := range v.endpoints {
		res := v.VerifyEndpoint(ctx, port, ep)
		if res.Err != nil {
			log.Error().Err(res.Err).Str("endpoint", ep.Name).Msg("[Verify] endpoint failed")
		}
		results = append(results, res)
	}
	return results
}

func (v *Verifier) VerifyEndpoint(ctx context.Context, port int, ep constants.Endpoint) definitions.EndpointResult {
	res := definitions.EndpointResult{
		Endpoint: ep.Name,
		URL:      v.URL(port, ep),
		Mode:     string(v.mode),
	}

	body, err := v.Fetch(ctx, res.URL)
	if err != nil {
		res.Err = err
		return res
	}
	log.Info().Str("endpoint", ep.Name).Int("bytes", len(body)).Msg("[Verify] fetched")

	if v.mode == definitions.ModeSerialize {
		res.SidePath, res.Err = v.store.Serialize(ep, body)
		if res.Err == nil {
			fmt.Fprintf(v.out, "[%s] serialized live response to %s\n", ep.Name, res.SidePath)
		}
		return res
	}

	delta, err := v.compare(ep, body)
	switch {
	case err == nil:
		res.Changes = len(delta.Changes)
		res.Rendered = Render(delta)
		v.print(ep, delta, res.Rendered)
	case v.mode == definitions.ModeUpdate && errors.Is(err, os.ErrNotExist):
		log.Info().Str("endpoint", ep.Name).Msg("[Verify] no reference yet, creating it")
	case v.mode == definitions.ModeUpdate:
		// the live response replaces an unreadable reference
		log.Warn().Err(err).Str("endpoint", ep.Name).Msg("[Verify] reference unusable, replacing it")
	default:
		res.Err = err
		return res
	}

	if v.mode == definitions.ModeUpdate {
		if err := v.store.Update(ep, body); err != nil {
			res.Err = err
			return res
		}
		res.Updated = true
		fmt.Fprintf(v.out, "[%s] reference snapshot updated: %s\n", ep.Name, v.store.Path(ep))
	}
	return res
}

// compare diffs the stored reference of ep against the live body.
func (v *Verifier) compare(ep constants.Endpoint, body []byte) (*Delta, error) {
	reference, err := v.store.Load(ep)
	if err != nil {
		return nil, err
	}
	return v.differ.DiffJSON(reference, body)
}

func (v *Verifier) print(ep constants.Endpoint, delta *Delta, rendered string) {
	if delta.Empty() {
		fmt.Fprintf(v.out, "[%s] matches snapshot\n", ep.Name)
		return
	}
	fmt.Fprintf(v.out, "[%s] %d difference(s) from snapshot:\n%s\n", ep.Name, len(delta.Changes), rendered)
	if v.jsonDiff {
		fmt.Fprintln(v.out, utils.JsonIndent(delta))
	}
}
