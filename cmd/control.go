package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"qtsettings/internal/config"
	"qtsettings/internal/dot"
	"qtsettings/internal/store"

	"github.com/spf13/cobra"
)

// control edits hosts and preferences, either through a running agent or
// directly in the store.
type control interface {
	Hosts(ctx context.Context) ([]store.HostRecord, error)
	AddHost(ctx context.Context, name, hostname string, verify bool) (store.HostRecord, error)
	EditHost(ctx context.Context, id, name, hostname string) (store.HostRecord, error)
	RemoveHost(ctx context.Context, id string) error
	SelectHost(ctx context.Context, id string, selected bool) error
	ImportHosts(ctx context.Context, data []byte) ([]store.HostRecord, error)
	Prefs(ctx context.Context) (map[string]string, error)
	SetPref(ctx context.Context, key, value string) error
	Close() error
}

// openControl prefers the agent so detectors react to preference changes.
func openControl(ctx context.Context, cfg *config.Config) (control, error) {
	if cfg.Agent.APIAddr != "" {
		c := newClient(cfg.Agent.APIAddr)
		if c.alive(ctx) {
			return &remoteControl{c: c}, nil
		}
	}
	app, err := NewApp(cfg)
	if err != nil {
		return nil, err
	}
	return &localControl{app: app}, nil
}

type remoteControl struct {
	c *client
}

func (r *remoteControl) Hosts(ctx context.Context) ([]store.HostRecord, error) {
	var hosts []store.HostRecord
	err := r.c.do(ctx, http.MethodGet, "/api/hosts", nil, &hosts)
	return hosts, err
}

func (r *remoteControl) AddHost(ctx context.Context, name, hostname string, verify bool) (store.HostRecord, error) {
	path := "/api/hosts"
	if verify {
		path += "?verify=true"
	}
	var rec store.HostRecord
	err := r.c.do(ctx, http.MethodPost, path, map[string]string{"name": name, "hostname": hostname}, &rec)
	return rec, err
}

func (r *remoteControl) EditHost(ctx context.Context, id, name, hostname string) (store.HostRecord, error) {
	var rec store.HostRecord
	err := r.c.do(ctx, http.MethodPut, "/api/hosts/"+url.PathEscape(id), map[string]string{"name": name, "hostname": hostname}, &rec)
	return rec, err
}

func (r *remoteControl) RemoveHost(ctx context.Context, id string) error {
	return r.c.do(ctx, http.MethodDelete, "/api/hosts/"+url.PathEscape(id), nil, nil)
}

func (r *remoteControl) SelectHost(ctx context.Context, id string, selected bool) error {
	return r.c.do(ctx, http.MethodPut, "/api/hosts/"+url.PathEscape(id)+"/selected", map[string]bool{"selected": selected}, nil)
}

func (r *remoteControl) ImportHosts(ctx context.Context, data []byte) ([]store.HostRecord, error) {
	var hosts []store.HostRecord
	err := r.c.do(ctx, http.MethodPost, "/api/hosts/import", json.RawMessage(data), &hosts)
	return hosts, err
}

func (r *remoteControl) Prefs(ctx context.Context) (map[string]string, error) {
	var values map[string]string
	err := r.c.do(ctx, http.MethodGet, "/api/prefs", nil, &values)
	return values, err
}

func (r *remoteControl) SetPref(ctx context.Context, key, value string) error {
	return r.c.do(ctx, http.MethodPut, "/api/prefs/"+url.PathEscape(key), map[string]string{"value": value}, nil)
}

func (r *remoteControl) Close() error { return nil }

type localControl struct {
	app *App
}

func (l *localControl) Hosts(ctx context.Context) ([]store.HostRecord, error) {
	return l.app.Prefs.Hosts(ctx), nil
}

func (l *localControl) AddHost(ctx context.Context, name, hostname string, verify bool) (store.HostRecord, error) {
	if err := store.ValidateHostname(hostname); err != nil {
		return store.HostRecord{}, err
	}
	if verify {
		if err := probeHost(ctx, l.app.Prober, hostname); err != nil {
			return store.HostRecord{}, err
		}
	}
	return l.app.Prefs.AddCustomHost(ctx, name, hostname)
}

func (l *localControl) EditHost(ctx context.Context, id, name, hostname string) (store.HostRecord, error) {
	return l.app.Prefs.EditCustomHost(ctx, id, name, hostname)
}

func (l *localControl) RemoveHost(ctx context.Context, id string) error {
	return l.app.Prefs.DeleteCustomHost(ctx, id)
}

func (l *localControl) SelectHost(ctx context.Context, id string, selected bool) error {
	return l.app.Prefs.SetHostSelected(ctx, id, selected)
}

func (l *localControl) ImportHosts(ctx context.Context, data []byte) ([]store.HostRecord, error) {
	return l.app.Prefs.ImportHosts(ctx, data)
}

func (l *localControl) Prefs(ctx context.Context) (map[string]string, error) {
	return l.app.Prefs.Values(ctx), nil
}

// SetPref stores the value. Turning a detector off also restores what it
// suppressed, since no agent is running to do it.
func (l *localControl) SetPref(ctx context.Context, key, value string) error {
	if err := l.app.Prefs.SetValue(ctx, key, value); err != nil {
		return err
	}
	if key == store.KeyVPNDetection && !l.app.Prefs.VPNDetection(ctx).Enabled {
		return l.app.VPN.Disable(ctx)
	}
	return nil
}

func (l *localControl) Close() error { return l.app.Close() }

func probeHost(ctx context.Context, p *dot.Prober, hostname string) error {
	res, err := p.Probe(ctx, hostname)
	if err != nil {
		return fmt.Errorf("hostname does not answer DNS-over-TLS: %w", err)
	}
	fmt.Printf("✅ %s answered via %s in %s\n", res.Hostname, res.Addr, res.RTT)
	return nil
}

func openControlFor(cmd *cobra.Command, opts *Options) (control, error) {
	cfg, err := opts.load()
	if err != nil {
		return nil, err
	}
	setupQuiet(cfg)
	return openControl(cmd.Context(), cfg)
}
