package meshconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ProcessConfig is one entry of the "processes" map in the overlay
// config document (spec.md §6). It corresponds 1:1 to spec.md's
// NodeConfig, with Connections playing the role of "outbound".
type ProcessConfig struct {
	Host        string   `json:"host"`
	Port        int      `json:"port"`
	Connections []string `json:"connections"`
	DataSubset  string   `json:"data_subset"`
}

// Overlay is the root JSON document: per-process configuration plus
// the informational edge list. Connections on each ProcessConfig are
// the authoritative forwarding edges; Overlay is descriptive only.
type Overlay struct {
	Processes map[string]ProcessConfig `json:"processes"`
	OverlayEdges []string              `json:"overlay"`
}

// NodeConfig is the resolved configuration for a single running node:
// its own identity plus the overlay it was loaded from, so NodeEngine
// can look up peer addresses for every outbound edge.
type NodeConfig struct {
	NodeID     string
	Host       string
	Port       int
	DataSubset string
	Outbound   []string
	Overlay    Overlay
}

// Load reads and parses the overlay config document at path and
// resolves the configuration for nodeID. Any failure here is fatal
// per spec.md §7: callers should log and os.Exit(1).
func Load(path, nodeID string) (NodeConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return NodeConfig{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var overlay Overlay
	if err := json.Unmarshal(raw, &overlay); err != nil {
		return NodeConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	proc, ok := overlay.Processes[nodeID]
	if !ok {
		return NodeConfig{}, fmt.Errorf("node %q not present in config %s", nodeID, path)
	}

	return NodeConfig{
		NodeID:     nodeID,
		Host:       proc.Host,
		Port:       proc.Port,
		DataSubset: proc.DataSubset,
		Outbound:   proc.Connections,
		Overlay:    overlay,
	}, nil
}

// PeerAddr resolves the host:port address of a peer node named by id,
// using this node's own overlay document.
func (c NodeConfig) PeerAddr(id string) (string, error) {
	proc, ok := c.Overlay.Processes[id]
	if !ok {
		return "", fmt.Errorf("unknown peer %q", id)
	}
	return fmt.Sprintf("%s:%d", proc.Host, proc.Port), nil
}

// ListenAddr is the address this node should bind its inbound RPC
// server to.
func (c NodeConfig) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// AuthoritativeBorough returns the single borough this node owns for
// get_by_borough routing, and whether this node owns any borough at
// all (the portal owns none, so its own get_by_borough contribution is
// empty; that verb is not forwarded from any node). Ownership is
// fixed by spec.md §6, not by data_subset content, to keep routing
// deterministic regardless of how an operator annotates data_subset.
func (c NodeConfig) AuthoritativeBorough() (borough string, owns bool) {
	switch strings.ToUpper(c.NodeID) {
	case "B":
		return "BROOKLYN", true
	case "C":
		return "QUEENS", true
	case "D":
		return "BRONX", true
	case "E":
		return "STATEN ISLAND", true
	default:
		return "", false
	}
}

// OwnsBorough reports whether this node is authoritative for the
// requested borough, honoring node E's catch-all for any borough
// outside {BROOKLYN, QUEENS, BRONX, STATEN ISLAND}.
func (c NodeConfig) OwnsBorough(requested string) bool {
	requested = strings.ToUpper(strings.TrimSpace(requested))
	borough, owns := c.AuthoritativeBorough()
	if !owns {
		return false
	}
	if strings.ToUpper(c.NodeID) == "E" {
		switch requested {
		case "BROOKLYN", "QUEENS", "BRONX", "STATEN ISLAND":
			return requested == borough
		default:
			return true // catch-all
		}
	}
	return requested == borough
}

// IsPortal reports whether this node has no authoritative borough,
// i.e. it is the external entry point (spec.md's node A).
func (c NodeConfig) IsPortal() bool {
	_, owns := c.AuthoritativeBorough()
	return !owns
}
