// Package declarative implements a scripthost.Host for scenario files that
// carry no embedded script: each scenario lists its HTTP calls directly
// (config.RequestSpec), the way the teacher's CLI quick mode builds one
// RequestConfig from --url instead of requiring a config file at all. It
// exists because an embedded scripting VM is out of scope (spec §1), but a
// CLI that can only run pre-compiled Go closures would not be a usable
// load-generator by itself.
package declarative

import (
	"context"
	"fmt"

	"github.com/nogcio/wrkr/internal/check"
	"github.com/nogcio/wrkr/internal/config"
	"github.com/nogcio/wrkr/internal/httpclient"
	"github.com/nogcio/wrkr/internal/metrics"
	"github.com/nogcio/wrkr/internal/scripthost"
	"github.com/nogcio/wrkr/internal/value"
)

// Host runs one scenario's RequestSpec list per iteration, in order,
// sharing one httpclient.Client per scenario (spec §4.5's "one shared pool
// per scenario" rule).
type Host struct {
	scenarios map[string][]config.RequestSpec
	tags      map[string]value.Tags

	clientCfg httpclient.Config
	clients   map[string]*httpclient.Client
}

// New builds a declarative Host from a fully loaded scenario document's
// scenarios. Every scenario's ExecFn is keyed by scenario name regardless
// of what was in the file, since there is no script to resolve a
// differently-named entry point against.
func New(scenarios []config.Scenario, clientCfg httpclient.Config) *Host {
	h := &Host{
		scenarios: make(map[string][]config.RequestSpec, len(scenarios)),
		tags:      make(map[string]value.Tags, len(scenarios)),
		clientCfg: clientCfg,
		clients:   make(map[string]*httpclient.Client, len(scenarios)),
	}
	for _, sc := range scenarios {
		h.scenarios[sc.Name] = sc.Requests
	}
	return h
}

// BindMetrics implements scripthost.MetricsSink. It is called once, after
// the run's Metrics Engine exists, before Setup.
func (h *Host) BindMetrics(m *metrics.Engine) {
	for name := range h.scenarios {
		h.clients[name] = httpclient.New(h.clientCfg, m)
	}
}

func (h *Host) ParseOptions(ctx context.Context, scriptPath string) (scripthost.ParseResult, error) {
	return scripthost.ParseResult{}, fmt.Errorf("declarative: ParseOptions is not supported; scenarios are loaded via internal/config")
}

func (h *Host) Setup(ctx context.Context) error { return nil }

func (h *Host) Teardown(ctx context.Context) error {
	for _, c := range h.clients {
		c.Close()
	}
	return nil
}

// Iteration runs fnName's (== scenario name's) full RequestSpec list once,
// inside a group scoped to the scenario name, recording one check per spec
// that declares ExpectStatus. Running under a group means every request and
// check this iteration records carries group=<scenario name>, the same as a
// scripted host that wrapped its calls in a single top-level group() (spec
// §4.4); vu is the capability handle the VU Runner passes into every Host.
func (h *Host) Iteration(ctx context.Context, fnName string, vu scripthost.VUContext) (scripthost.IterationResult, error) {
	reqs, ok := h.scenarios[fnName]
	if !ok {
		return scripthost.IterationResult{}, fmt.Errorf("declarative: no such scenario %q", fnName)
	}
	client := h.clients[fnName]
	if client == nil {
		return scripthost.IterationResult{}, fmt.Errorf("declarative: metrics engine not bound yet")
	}

	if _, err := vu.PushGroup(fnName); err != nil {
		return scripthost.IterationResult{}, err
	}
	defer vu.PopGroup()

	for _, spec := range reqs {
		body := value.Null()
		if spec.Body != "" {
			body = value.String(spec.Body)
		}
		resp, err := client.Do(ctx, httpclient.Request{
			Method:      spec.Method,
			URL:         spec.URL,
			Headers:     spec.Headers,
			QueryParams: spec.QueryParams,
			Body:        body,
			Timeout:     spec.Timeout.Go(),
			Name:        spec.Name,
			Tags:        value.NewTags().With("scenario", value.TagString(fnName)).With("group", value.TagString(vu.ActiveGroup())),
		})
		if err != nil {
			return scripthost.IterationResult{ScriptErr: err}, nil
		}
		if spec.ExpectStatus != 0 {
			vu.RecordCheck(checkName(spec), resp.Status == spec.ExpectStatus)
		}
		if spec.JSONSchema != "" {
			ok, err := check.MatchesSchema(resp.Body, []byte(spec.JSONSchema))
			if err != nil {
				return scripthost.IterationResult{ScriptErr: err}, nil
			}
			vu.RecordCheck(fmt.Sprintf("%s matches schema", specLabel(spec)), ok)
		}
	}
	return scripthost.IterationResult{}, nil
}

func (h *Host) HandleSummary(ctx context.Context, summary scripthost.Summary) (map[string][]byte, error) {
	return nil, nil
}

func checkName(spec config.RequestSpec) string {
	return fmt.Sprintf("%s status == %d", specLabel(spec), spec.ExpectStatus)
}

func specLabel(spec config.RequestSpec) string {
	if spec.Name != "" {
		return spec.Name
	}
	return spec.URL
}

var _ scripthost.Host = (*Host)(nil)
var _ scripthost.MetricsSink = (*Host)(nil)
