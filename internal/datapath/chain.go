package datapath

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const (
	// ModeRaw streams the down-converted radio samples: radio -> ddc -> host
	ModeRaw Mode = "raw"
	// ModeSchmidlCox streams through the synchronization block: radio -> ddc -> sync -> host
	ModeSchmidlCox Mode = "schmidl_cox"
)

var validModes = map[Mode][]Kind{
	ModeRaw:        {KindRadio, KindDDC, KindHost},
	ModeSchmidlCox: {KindRadio, KindDDC, KindSync, KindHost},
}

// Mode selects which stages samples traverse between antenna and host
type Mode string

func (m Mode) String() string {
	return string(m)
}

func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := validModes[m]; !ok {
		return "", fmt.Errorf("invalid datapath '%s': must be raw or schmidl_cox", s)
	}
	return m, nil
}

// Chain is the ordered list of stages of a datapath and the edges between them
type Chain struct {
	Mode     Mode
	Channels int
	Stages   []Stage
	Edges    []Edge
}

// Source returns the stage that streams to the host
func (c *Chain) Source() Stage {
	return c.Stages[len(c.Stages)-2]
}

// Stage returns the chain stage of the given kind
func (c *Chain) Stage(kind Kind) (Stage, bool) {
	for _, s := range c.Stages {
		if s.Kind == kind {
			return s, true
		}
	}
	return Stage{}, false
}

func (c *Chain) String() string {
	ids := make([]string, len(c.Stages))
	for i, s := range c.Stages {
		ids[i] = s.ID.String()
	}
	return strings.Join(ids, " -> ")
}

// Build resolves the stages of mode in the topology and lays out one edge
// per channel between consecutive stages.
func Build(topo *Topology, mode Mode, channels int) (*Chain, error) {
	kinds, ok := validModes[mode]
	if !ok {
		return nil, fmt.Errorf("invalid datapath '%s'", mode)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}

	chain := Chain{Mode: mode, Channels: channels}
	for _, kind := range kinds {
		stage, ok := topo.Find(kind, 0)
		if !ok {
			return nil, fmt.Errorf("no %s block found in the graph", kind)
		}
		chain.Stages = append(chain.Stages, stage)
	}

	for i := 0; i+1 < len(chain.Stages); i++ {
		src, dst := chain.Stages[i], chain.Stages[i+1]
		if src.OutPorts < channels {
			return nil, fmt.Errorf("%s has %d output ports, %d channels requested", src.ID, src.OutPorts, channels)
		}
		if dst.InPorts < channels {
			return nil, fmt.Errorf("%s has %d input ports, %d channels requested", dst.ID, dst.InPorts, channels)
		}
		for port := 0; port < channels; port++ {
			chain.Edges = append(chain.Edges, Edge{Src: src.ID, SrcPort: port, Dst: dst.ID, DstPort: port})
		}
	}

	return &chain, nil
}

// Connect makes the chain connections and commits the graph
func Connect(ctx context.Context, g Graph, chain *Chain, logger *slog.Logger) error {
	for _, e := range chain.Edges {
		logger.Info("connecting", slog.String("edge", e.String()))
		if err := g.Connect(ctx, e); err != nil {
			return fmt.Errorf("connecting %s: %w", e, err)
		}
	}

	logger.Info("committing graph...")
	if err := g.Commit(ctx); err != nil {
		return fmt.Errorf("committing graph: %w", err)
	}
	return nil
}
