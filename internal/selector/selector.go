// Package selector picks which nodes participate in a signing session.
// Determinism matters here: every node must be able to recompute the same
// selection independently of the coordinator, so any party can verify a
// grant's participant list rather than trust it blindly (§4.1, §4.8).
package selector

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/torcus-labs/tss-wallet/internal/config"
)

// Policy is a participant selection strategy.
type Policy string

const (
	PolicyDeterministic Policy = "deterministic"
	PolicyRoundRobin    Policy = "round_robin"
	PolicyWeighted      Policy = "weighted"
)

// Input is everything a Policy needs to pick participants.
type Input struct {
	Seed              string    // e.g. wallet_id + ":" + message_hash
	AvailableNodes    []int     // healthy candidate node indices
	Threshold         int       // number of participants to select
	NodeScores        []float64 // health scores in [0,1], indexed by node; PolicyWeighted only
	RoundRobinCounter uint64    // PolicyRoundRobin only
}

// Result is a selection outcome, reproducible and independently verifiable.
type Result struct {
	Participants  []int
	Policy        Policy
	SelectionHash string
}

// Select picks `threshold` nodes from `available` under the given policy.
func Select(policy Policy, in Input) (*Result, error) {
	if len(in.AvailableNodes) == 0 {
		return nil, fmt.Errorf("%w: no available nodes", config.ErrInvalidConfig)
	}
	if in.Threshold <= 0 {
		return nil, fmt.Errorf("%w: threshold must be positive", config.ErrInvalidConfig)
	}
	if len(in.AvailableNodes) < in.Threshold {
		return nil, fmt.Errorf("%w: need %d nodes, have %d", config.ErrInvalidConfig, in.Threshold, len(in.AvailableNodes))
	}

	var participants []int
	var err error
	switch policy {
	case PolicyDeterministic:
		participants = selectDeterministic(in)
	case PolicyRoundRobin:
		participants = selectRoundRobin(in)
	case PolicyWeighted:
		participants, err = selectWeighted(in)
	default:
		return nil, fmt.Errorf("%w: unknown selection policy %q", config.ErrInvalidConfig, policy)
	}
	if err != nil {
		return nil, err
	}

	return &Result{
		Participants:  participants,
		Policy:        policy,
		SelectionHash: selectionHash(policy, in, participants),
	}, nil
}

// selectDeterministic hashes seed||node for every candidate and takes the
// threshold nodes with the lowest hash, breaking ties by node index.
func selectDeterministic(in Input) []int {
	type scored struct {
		node int
		hash [32]byte
	}
	scoredNodes := make([]scored, len(in.AvailableNodes))
	for i, node := range in.AvailableNodes {
		scoredNodes[i] = scored{node: node, hash: nodeHash(in.Seed, "", node)}
	}
	sort.Slice(scoredNodes, func(i, j int) bool {
		ci := compareHash(scoredNodes[i].hash, scoredNodes[j].hash)
		if ci != 0 {
			return ci < 0
		}
		return scoredNodes[i].node < scoredNodes[j].node
	})

	selected := make([]int, 0, in.Threshold)
	for _, sn := range scoredNodes[:in.Threshold] {
		selected = append(selected, sn.node)
	}
	sort.Ints(selected)
	return selected
}

// selectRoundRobin rotates through the sorted candidate list starting at
// counter mod len(nodes).
func selectRoundRobin(in Input) []int {
	nodes := append([]int(nil), in.AvailableNodes...)
	sort.Ints(nodes)

	offset := int(in.RoundRobinCounter % uint64(len(nodes)))
	selected := make([]int, 0, in.Threshold)
	for i := 0; i < in.Threshold; i++ {
		selected = append(selected, nodes[(offset+i)%len(nodes)])
	}
	sort.Ints(selected)
	return selected
}

// selectWeighted combines a node's health score with a deterministic hash
// component (70/30 split) so healthier nodes are preferred but ties still
// resolve reproducibly. Falls back to deterministic selection if no scores
// are supplied.
func selectWeighted(in Input) ([]int, error) {
	if in.NodeScores == nil {
		return selectDeterministic(in), nil
	}

	type weighted struct {
		node    int
		combined float64
	}
	out := make([]weighted, len(in.AvailableNodes))
	for i, node := range in.AvailableNodes {
		var health float64 = 0.5
		if node >= 0 && node < len(in.NodeScores) {
			health = in.NodeScores[node]
		}
		if health < 0 || health > 1 {
			return nil, fmt.Errorf("%w: score for node %d out of range [0,1]: %v", config.ErrInvalidConfig, node, health)
		}

		hash := nodeHash(in.Seed, "weighted", node)
		hashVal := float64(binary.LittleEndian.Uint64(hash[:8])) / float64(^uint64(0))

		out[i] = weighted{node: node, combined: health*0.7 + hashVal*0.3}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].combined != out[j].combined {
			return out[i].combined > out[j].combined
		}
		return out[i].node < out[j].node
	})

	selected := make([]int, 0, in.Threshold)
	for _, w := range out[:in.Threshold] {
		selected = append(selected, w.node)
	}
	sort.Ints(selected)
	return selected, nil
}

func nodeHash(seed, tag string, node int) [32]byte {
	h := sha256.New()
	h.Write([]byte(seed))
	h.Write([]byte(":"))
	if tag != "" {
		h.Write([]byte(tag))
		h.Write([]byte(":"))
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(int64(node)))
	h.Write(buf[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func compareHash(a, b [32]byte) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// selectionHash fingerprints an (input, outcome) pair so any node can
// verify a received selection without recomputing the full algorithm.
func selectionHash(policy Policy, in Input, participants []int) string {
	h := sha256.New()
	h.Write([]byte(in.Seed))
	h.Write([]byte(":policy:"))
	h.Write([]byte(policy))
	h.Write([]byte(":available:"))
	for _, n := range in.AvailableNodes {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(n)))
		h.Write(buf[:])
	}
	h.Write([]byte(":threshold:"))
	var tbuf [4]byte
	binary.LittleEndian.PutUint32(tbuf[:], uint32(in.Threshold))
	h.Write(tbuf[:])
	h.Write([]byte(":selected:"))
	for _, n := range participants {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(n)))
		h.Write(buf[:])
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// Seed derives a deterministic selection seed from a wallet ID and message hash.
func Seed(walletID string, messageHash [32]byte) string {
	return walletID + ":" + hex.EncodeToString(messageHash[:])
}
