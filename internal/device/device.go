package device

import (
	"errors"
	"sync"

	"github.com/nerrad567/gray-logic-hub/internal/cluster"
	"github.com/nerrad567/gray-logic-hub/internal/reactive"
)

// Endpoint is a node in a device's capability tree. It exclusively owns its
// clusters and child endpoints and closes them when it is closed.
type Endpoint struct {
	clusters  []cluster.Cluster
	endpoints []*Endpoint
}

// NewEndpoint creates an endpoint owning clusters and children.
func NewEndpoint(clusters []cluster.Cluster, children ...*Endpoint) *Endpoint {
	return &Endpoint{clusters: clusters, endpoints: children}
}

// Clusters returns the endpoint's own clusters.
func (e *Endpoint) Clusters() []cluster.Cluster {
	return e.clusters
}

// Endpoints returns the direct child endpoints.
func (e *Endpoint) Endpoints() []*Endpoint {
	return e.endpoints
}

// AllClusters returns this endpoint's clusters followed by every
// descendant's, depth first.
func (e *Endpoint) AllClusters() []cluster.Cluster {
	out := append([]cluster.Cluster(nil), e.clusters...)
	for _, child := range e.endpoints {
		out = append(out, child.AllClusters()...)
	}
	return out
}

// AllEndpoints returns every descendant endpoint, depth first. The receiver
// itself is not included.
func (e *Endpoint) AllEndpoints() []*Endpoint {
	var out []*Endpoint
	for _, child := range e.endpoints {
		out = append(out, child)
		out = append(out, child.AllEndpoints()...)
	}
	return out
}

// ClusterByName returns the first cluster in the tree tagged name.
func (e *Endpoint) ClusterByName(name cluster.Name) (cluster.Cluster, bool) {
	for _, c := range e.AllClusters() {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// ClustersByName returns every cluster in the tree tagged name.
func (e *Endpoint) ClustersByName(name cluster.Name) []cluster.Cluster {
	var out []cluster.Cluster
	for _, c := range e.AllClusters() {
		if c.Name() == name {
			out = append(out, c)
		}
	}
	return out
}

// Close closes every cluster and child endpoint, returning all errors joined.
func (e *Endpoint) Close() error {
	var errs []error
	for _, c := range e.clusters {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, child := range e.endpoints {
		if err := child.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ClusterSource is anything that can list a flattened set of clusters.
type ClusterSource interface {
	AllClusters() []cluster.Cluster
}

// ClusterOf returns the first cluster tagged name that implements T.
//
// Lookup is by capability tag, so a Matter OnOff and an MQTT OnOff are
// found the same way.
func ClusterOf[T cluster.Cluster](src ClusterSource, name cluster.Name) (T, bool) {
	for _, c := range src.AllClusters() {
		if typed, ok := cluster.As[T](c, name); ok {
			return typed, true
		}
	}
	var zero T
	return zero, false
}

// AllClustersOf returns every cluster tagged name that implements T.
func AllClustersOf[T cluster.Cluster](src ClusterSource, name cluster.Name) []T {
	var out []T
	for _, c := range src.AllClusters() {
		if typed, ok := cluster.As[T](c, name); ok {
			out = append(out, typed)
		}
	}
	return out
}

// Info describes a device when it is created.
type Info struct {
	// ID is globally unique and stable across restarts, prefixed by the
	// vendor (e.g. "mqtt:hall-light").
	ID string

	// Source is the producing integration.
	Source Source

	// Name is the vendor-reported name, used when the user has not set one.
	Name string

	// ManagementURL optionally points at the device's own admin page.
	ManagementURL string
}

// Device is the root Endpoint of a physical unit.
type Device struct {
	*Endpoint

	info     Info
	status   *reactive.Data[Status]
	onChange reactive.Emitter[struct{}]

	forwarders []func()
	closeOnce  sync.Once
	closeErr   error
}

// New creates a device rooted at root. It starts online and forwards every
// cluster change in the tree to OnChange.
func New(info Info, root *Endpoint) *Device {
	if root == nil {
		root = NewEndpoint(nil)
	}
	d := &Device{
		Endpoint: root,
		info:     info,
		status:   reactive.New(StatusOnline),
	}
	for _, c := range root.AllClusters() {
		d.forwarders = append(d.forwarders, reactive.Forward(c.OnChange(), &d.onChange))
	}
	return d
}

// ID returns the device id.
func (d *Device) ID() string { return d.info.ID }

// Source returns the producing integration.
func (d *Device) Source() Source { return d.info.Source }

// Name returns the vendor-reported name.
func (d *Device) Name() string { return d.info.Name }

// ManagementURL returns the device admin URL, empty when there is none.
func (d *Device) ManagementURL() string { return d.info.ManagementURL }

// Status returns the device reachability cell.
func (d *Device) Status() reactive.Cell[Status] { return d.status }

// SetStatus updates the device reachability.
func (d *Device) SetStatus(s Status) { d.status.Set(s) }

// OnChange fires whenever any cluster in the device changes.
func (d *Device) OnChange() *reactive.Emitter[struct{}] { return &d.onChange }

// Close stops change forwarding and closes the endpoint tree. Subsequent
// calls return the first result.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		for _, stop := range d.forwarders {
			stop()
		}
		d.forwarders = nil
		d.closeErr = d.Endpoint.Close()
	})
	return d.closeErr
}
