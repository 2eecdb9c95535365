package managers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fulmenhq/pkgscout/pkg/jsonutil"
	"github.com/fulmenhq/pkgscout/pkg/registry"
	"github.com/fulmenhq/pkgscout/pkg/runner"
)

// InfoFetcher loads release metadata for one package. dir is the project the
// package was found in, so CLI fetchers pick up per-project registry config.
type InfoFetcher interface {
	Fetch(ctx context.Context, name, dir string) (*registry.PackageInfo, error)
}

// RegistryFetcher reads metadata straight from an npm-compatible registry.
type RegistryFetcher struct {
	client *registry.NPMClient
}

// NewRegistryFetcher wraps client as an InfoFetcher.
func NewRegistryFetcher(client *registry.NPMClient) *RegistryFetcher {
	return &RegistryFetcher{client: client}
}

func (f *RegistryFetcher) Fetch(ctx context.Context, name, _ string) (*registry.PackageInfo, error) {
	return f.client.PackageInfo(ctx, name)
}

// infoDocument is the shape of `npm info --json` and its pnpm/yarn cousins.
type infoDocument struct {
	Time       map[string]string `json:"time"`
	Deprecated json.RawMessage   `json:"deprecated"`
}

func (d infoDocument) packageInfo() *registry.PackageInfo {
	info := &registry.PackageInfo{Time: d.Time, Deprecated: isDeprecated(d.Deprecated)}
	if info.Time == nil {
		info.Time = map[string]string{}
	}
	return info
}

// isDeprecated treats any present deprecation notice as deprecated.
func isDeprecated(raw json.RawMessage) bool {
	switch string(raw) {
	case "", "null", "false", `""`:
		return false
	default:
		return true
	}
}

// cliFetcher runs "<tool> <args...>" and decodes a single info document.
type cliFetcher struct {
	runner runner.Runner
	tool   string
	args   func(name string) []string
}

func (f *cliFetcher) Fetch(ctx context.Context, name, dir string) (*registry.PackageInfo, error) {
	cmd := runner.Command{Name: f.tool, Args: f.args(name), Dir: dir}
	res, err := f.runner.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, runner.NewExecError(cmd, res)
	}
	doc, ok := jsonutil.Decode[infoDocument](res.Stdout)
	if !ok {
		return nil, fmt.Errorf("unparseable output from %s", cmd)
	}
	return doc.packageInfo(), nil
}

// NewNpmInfoFetcher returns the `npm info <name> --json` fetcher.
func NewNpmInfoFetcher(r runner.Runner) InfoFetcher {
	return &cliFetcher{runner: r, tool: "npm", args: func(name string) []string {
		return []string{"info", name, "--json"}
	}}
}

// NewPnpmInfoFetcher returns the `pnpm info <name> --json` fetcher.
func NewPnpmInfoFetcher(r runner.Runner) InfoFetcher {
	return &cliFetcher{runner: r, tool: "pnpm", args: func(name string) []string {
		return []string{"info", name, "--json"}
	}}
}

// NewYarnBerryInfoFetcher returns the `yarn npm info <name> --json --fields time`
// fetcher.
func NewYarnBerryInfoFetcher(r runner.Runner) InfoFetcher {
	return &cliFetcher{runner: r, tool: "yarn", args: func(name string) []string {
		return []string{"npm", "info", name, "--json", "--fields", "time"}
	}}
}

// yarnEnvelope is one line of yarn classic's --json output.
type yarnEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// yarnClassicFetcher runs `yarn info <name> --json`. Its output is a stream of
// envelopes and only the "inspect" one carries package data.
type yarnClassicFetcher struct {
	runner runner.Runner
}

// NewYarnClassicInfoFetcher returns the yarn v1 `yarn info` fetcher.
func NewYarnClassicInfoFetcher(r runner.Runner) InfoFetcher {
	return &yarnClassicFetcher{runner: r}
}

func (f *yarnClassicFetcher) Fetch(ctx context.Context, name, dir string) (*registry.PackageInfo, error) {
	cmd := runner.Command{Name: "yarn", Args: []string{"info", name, "--json"}, Dir: dir}
	res, err := f.runner.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, runner.NewExecError(cmd, res)
	}
	for _, line := range jsonutil.SplitLines(res.Stdout) {
		env, ok := jsonutil.Decode[yarnEnvelope](line)
		if !ok || env.Type != "inspect" {
			continue
		}
		doc, ok := jsonutil.Decode[infoDocument](string(env.Data))
		if !ok || doc.Time == nil {
			continue
		}
		return doc.packageInfo(), nil
	}
	return nil, fmt.Errorf("no release data in %s output", cmd)
}
