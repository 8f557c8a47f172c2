package workflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

// Only the (tool, tool) pair is rejected, whatever the node ids are.
func TestProperty_ConnectionRuleDependsOnlyOnKinds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		src := rapid.SampledFrom(Kinds()).Draw(rt, "source")
		dst := rapid.SampledFrom(Kinds()).Draw(rt, "target")
		srcID := rapid.StringMatching(`[a-z][a-z0-9]{0,8}`).Draw(rt, "source_id")
		dstID := srcID + "-" + rapid.StringMatching(`[a-z0-9]{1,8}`).Draw(rt, "target_suffix")

		forbidden := src == KindTool && dst == KindTool
		if check := ValidateConnection(src, dst); check.Valid == forbidden {
			rt.Fatalf("ValidateConnection(%s, %s) = %+v", src, dst, check)
		}

		g := NewGraph("prop", "")
		if _, err := g.AddNode(src, nil, Position{}, WithNodeID(srcID)); err != nil {
			rt.Fatalf("add source: %v", err)
		}
		if _, err := g.AddNode(dst, nil, Position{}, WithNodeID(dstID)); err != nil {
			rt.Fatalf("add target: %v", err)
		}
		_, err := g.Connect(srcID, dstID)
		if forbidden {
			if !IsValidation(err) {
				rt.Fatalf("expected validation error, got %v", err)
			}
			if len(g.Edges()) != 0 {
				rt.Fatalf("rejected edge was inserted")
			}
			return
		}
		if err != nil {
			rt.Fatalf("connect %s -> %s: %v", src, dst, err)
		}
	})
}

// A linear chain runs in order and the token total is the sum of node tokens.
func TestProperty_LinearChainExecutionOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)
	exec := NewExecutor(WithLogger(zap.NewNop()))

	properties.Property("path equals chain order and tokens add up", prop.ForAll(
		func(length int, input string) bool {
			g := NewGraph("chain", "")
			ids := make([]string, 0, length)
			for i := 0; i < length; i++ {
				kind := KindAgent
				if i%2 == 1 {
					kind = KindTool
				}
				id := fmt.Sprintf("n%d", i)
				if _, err := g.AddNode(kind, nil, Position{}, WithNodeID(id)); err != nil {
					return false
				}
				if i > 0 {
					if _, err := g.Connect(ids[i-1], id); err != nil {
						return false
					}
				}
				ids = append(ids, id)
			}

			rec, err := exec.Execute(context.Background(), g, input)
			if err != nil || rec.Status != ExecutionStatusCompleted {
				return false
			}
			if len(rec.ExecutionPath) != length {
				return false
			}
			sum := 0
			for i, id := range rec.ExecutionPath {
				if id != ids[i] {
					return false
				}
				sum += rec.Results[id].TokensUsed
			}
			return sum == rec.Metrics.TotalTokensUsed
		},
		gen.IntRange(1, 8),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// Every workflow id handed out by a store is unique and owns an empty graph.
func TestProperty_CreateWorkflowIsFresh(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30

	properties := gopter.NewProperties(parameters)
	properties.Property("repeated creates yield distinct empty graphs", prop.ForAll(
		func(name string, n int) bool {
			store := NewStore(nil)
			seen := make(map[string]bool, n)
			for i := 0; i < n; i++ {
				id := store.CreateWorkflow(name, "same")
				if seen[id] {
					return false
				}
				seen[id] = true
				g, err := store.Workflow(id)
				if err != nil || g.Len() != 0 {
					return false
				}
			}
			return len(store.Workflows()) == n
		},
		gen.AlphaString(),
		gen.IntRange(2, 10),
	))

	properties.TestingRun(t)
}
