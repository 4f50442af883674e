// Package datapath describes the hardware processing graph as typed stage
// descriptors and builds the chain a receiver streams from.
package datapath

import (
	"context"
	"fmt"
	"slices"
)

const (
	KindRadio Kind = "Radio"
	KindDDC   Kind = "DDC"
	KindSync  Kind = "Schmidl_cox"
	KindHost  Kind = "Host"
)

const (
	CapReceive      Capability = "rx"
	CapDownConvert  Capability = "ddc"
	CapSynchronize  Capability = "sync"
	CapHostEndpoint Capability = "host"
)

// Kind is the block type of a stage
type Kind string

// Capability tags what a stage can do independently of its kind
type Capability string

// BlockID identifies a stage on a device, rendered as "0/Radio#0"
type BlockID struct {
	Device int    `json:"device"`
	Name   string `json:"name"`
	Index  int    `json:"index"`
}

func (id BlockID) String() string {
	return fmt.Sprintf("%d/%s#%d", id.Device, id.Name, id.Index)
}

// Stage is one processing block of the graph
type Stage struct {
	ID       BlockID      `json:"id"`
	Kind     Kind         `json:"kind"`
	Tags     []Capability `json:"tags"`
	InPorts  int          `json:"inPorts"`
	OutPorts int          `json:"outPorts"`
}

// Has returns true if the stage carries the capability tag
func (s Stage) Has(tag Capability) bool {
	return slices.Contains(s.Tags, tag)
}

// Edge connects an output port of one stage to an input port of another
type Edge struct {
	Src     BlockID `json:"src"`
	SrcPort int     `json:"srcPort"`
	Dst     BlockID `json:"dst"`
	DstPort int     `json:"dstPort"`
}

func (e Edge) String() string {
	return fmt.Sprintf("%s:%d -> %s:%d", e.Src, e.SrcPort, e.Dst, e.DstPort)
}

// Graph is the hardware processing graph
type Graph interface {
	// Stages enumerates the blocks available on the devices
	Stages(ctx context.Context) ([]Stage, error)

	// Connect adds a static connection between two stages
	Connect(ctx context.Context, e Edge) error

	// Commit activates all connections made so far
	Commit(ctx context.Context) error
}

// Topology is the set of stages discovered once at startup
type Topology struct {
	stages []Stage
}

// Discover enumerates the graph stages
func Discover(ctx context.Context, g Graph) (*Topology, error) {
	stages, err := g.Stages(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerating stages: %w", err)
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("no stages found in the graph")
	}

	seen := make(map[BlockID]struct{}, len(stages))
	for _, s := range stages {
		if _, ok := seen[s.ID]; ok {
			return nil, fmt.Errorf("duplicate stage %s", s.ID)
		}
		seen[s.ID] = struct{}{}
	}

	return &Topology{stages: stages}, nil
}

func (t *Topology) Stages() []Stage {
	return slices.Clone(t.stages)
}

// Find returns the stage of the given kind and index on device 0
func (t *Topology) Find(kind Kind, index int) (Stage, bool) {
	for _, s := range t.stages {
		if s.Kind == kind && s.ID.Index == index && s.ID.Device == 0 {
			return s, true
		}
	}
	return Stage{}, false
}

// FindByTag returns all stages carrying the capability tag
func (t *Topology) FindByTag(tag Capability) []Stage {
	var out []Stage
	for _, s := range t.stages {
		if s.Has(tag) {
			out = append(out, s)
		}
	}
	return out
}
