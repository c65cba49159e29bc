// Package dot checks that a Private DNS hostname answers DNS-over-TLS.
package dot

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"qtsettings/internal/utils"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

const (
	DefaultQuery   = "dns.google."
	DefaultPort    = "853"
	DefaultTimeout = 5 * time.Second
)

var (
	ErrEmptyHostname = errors.New("hostname is empty")
	ErrBadResponse   = errors.New("resolver returned an error response")
)

// Result of a successful probe.
type Result struct {
	Hostname string        `json:"hostname"`
	Addr     string        `json:"addr"`
	RTT      time.Duration `json:"rtt"`
	Answers  int           `json:"answers"`
}

// Prober sends one A query over tcp-tls to hostname:853.
type Prober struct {
	Query   string
	Port    string
	Timeout time.Duration
	// TLSConfig is cloned per probe; ServerName is always the probed hostname.
	TLSConfig *tls.Config
	// Addr maps a hostname to the address dialed. Defaults to hostname:Port.
	Addr func(hostname string) string
}

func (p *Prober) addr(hostname string) string {
	if p.Addr != nil {
		return p.Addr(hostname)
	}
	port := p.Port
	if port == "" {
		port = DefaultPort
	}
	return net.JoinHostPort(hostname, port)
}

// Probe reports whether hostname serves DNS-over-TLS.
func (p *Prober) Probe(ctx context.Context, hostname string) (Result, error) {
	hostname = strings.TrimSuffix(strings.TrimSpace(hostname), ".")
	if hostname == "" {
		return Result{}, ErrEmptyHostname
	}
	if err := utils.ValidateDomainLength(hostname); err != nil {
		return Result{}, err
	}

	query := p.Query
	if query == "" {
		query = DefaultQuery
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if p.TLSConfig != nil {
		tlsConfig = p.TLSConfig.Clone()
	}
	tlsConfig.ServerName = hostname

	c := &dns.Client{Net: "tcp-tls", TLSConfig: tlsConfig, Timeout: timeout}
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(query), dns.TypeA)
	m.RecursionDesired = true

	addr := p.addr(hostname)
	resp, rtt, err := c.ExchangeContext(ctx, m, addr)
	if err != nil {
		logrus.WithError(err).WithField("addr", addr).Debug("DoT probe failed")
		return Result{}, fmt.Errorf("probing %s: %w", hostname, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return Result{}, fmt.Errorf("%w: %s", ErrBadResponse, dns.RcodeToString[resp.Rcode])
	}

	logrus.WithFields(logrus.Fields{
		"hostname": hostname,
		"rtt":      rtt,
		"answers":  len(resp.Answer),
	}).Debug("DoT probe succeeded")
	return Result{Hostname: hostname, Addr: addr, RTT: rtt, Answers: len(resp.Answer)}, nil
}
