package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ClusterConfig configures discovery through a cluster endpoints API.
type ClusterConfig struct {
	// Endpoint is the URL returning the endpoints list.
	Endpoint string

	// LabelSelector is passed as the labelSelector query parameter.
	LabelSelector string

	// PortName selects a named port. Empty takes the first port of a subset.
	PortName string

	// Token is sent as a bearer token when set.
	Token string

	Timeout time.Duration
}

type endpointPort struct {
	Name string `json:"name"`
	Port int    `json:"port"`
}

// endpointList is the subset of the cluster endpoints response the
// gateway reads.
type endpointList struct {
	Items []struct {
		Metadata struct {
			Name string `json:"name"`
		} `json:"metadata"`
		Subsets []struct {
			Addresses []struct {
				IP string `json:"ip"`
			} `json:"addresses"`
			Ports []endpointPort `json:"ports"`
		} `json:"subsets"`
	} `json:"items"`
}

// ClusterDiscoverer lists plugin endpoints matching a label selector.
// Every ready address/port pair becomes one TCP address.
type ClusterDiscoverer struct {
	cfg  ClusterConfig
	http *http.Client
}

// NewClusterDiscoverer creates a cluster discoverer.
func NewClusterDiscoverer(cfg ClusterConfig) *ClusterDiscoverer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ClusterDiscoverer{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

// Name implements Discoverer.
func (d *ClusterDiscoverer) Name() string { return "cluster" }

// Discover implements Discoverer.
func (d *ClusterDiscoverer) Discover(ctx context.Context) ([]Address, error) {
	u, err := url.Parse(d.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: endpoint: %w", ErrDiscovery, err)
	}
	if d.cfg.LabelSelector != "" {
		q := u.Query()
		q.Set("labelSelector", d.cfg.LabelSelector)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}
	req.Header.Set("Accept", "application/json")
	if d.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.cfg.Token)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best effort
		return nil, fmt.Errorf("%w: endpoints returned %d: %s", ErrDiscovery, resp.StatusCode, msg)
	}

	var list endpointList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("%w: decoding endpoints: %w", ErrDiscovery, err)
	}

	var addrs []Address
	for _, item := range list.Items {
		for _, subset := range item.Subsets {
			port, ok := d.pickPort(subset.Ports)
			if !ok {
				continue
			}
			for _, a := range subset.Addresses {
				addrs = append(addrs, Address{
					Mode:    ModeTCP,
					Address: net.JoinHostPort(a.IP, strconv.Itoa(port)),
				})
			}
		}
	}
	return addrs, nil
}

func (d *ClusterDiscoverer) pickPort(ports []endpointPort) (int, bool) {
	for _, p := range ports {
		if d.cfg.PortName == "" || p.Name == d.cfg.PortName {
			return p.Port, true
		}
	}
	return 0, false
}
