// edgewall/tools/graph_gen/main.go

// graph_gen produces a synthetic rule graph payload for load testing and
// demos: a request node fanning out into randomized condition branches,
// each ending in a terminal, packed the way the deploy pipeline packs it.
package main

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/brianvoe/gofakeit/v7"

	"edgewall/pkg/compiler"
)

var pathFields = []string{"path", "userAgent", "host", "query"}

var stringOperators = []string{
	compiler.OpEquals, compiler.OpContains, compiler.OpStartsWith, compiler.OpEndsWith,
}

func parseFlags(args []string) (int, string, bool) {
	fs := flag.NewFlagSet("graph_gen", flag.ExitOnError)
	numBranches := fs.Int("branches", 50, "Number of condition branches to generate")
	outputFile := fs.String("output", "generated_rules.packed", "Output file for the packed payload")
	raw := fs.Bool("raw", false, "Emit raw:base64 instead of gzip")
	fs.Parse(args)
	return *numBranches, *outputFile, *raw
}

func generateCondition() compiler.ConditionData {
	field := pathFields[rand.Intn(len(pathFields))]
	return compiler.ConditionData{
		Field:    field,
		Operator: stringOperators[rand.Intn(len(stringOperators))],
		Value:    "/" + gofakeit.Word(),
	}
}

func generateTerminal(id string) compiler.Node {
	var data interface{}
	nodeType := compiler.NodeAction
	switch rand.Intn(4) {
	case 0:
		data = compiler.ActionData{Action: "block", StatusCode: 403, Message: gofakeit.Sentence(4)}
	case 1:
		data = compiler.ActionData{Action: "challenge", ChallengeType: "interactive"}
	case 2:
		nodeType = compiler.NodeRedirect
		data = compiler.RedirectData{URL: gofakeit.URL(), StatusCode: 302}
	default:
		nodeType = compiler.NodeBackend
		data = compiler.BackendConfig{Host: gofakeit.DomainName(), Port: 443, UseTLS: true}
	}
	raw, _ := json.Marshal(data)
	return compiler.Node{ID: id, Type: nodeType, Data: raw}
}

func generatePayload(numBranches int) *compiler.GraphPayload {
	payload := &compiler.GraphPayload{}
	payload.Nodes = append(payload.Nodes, compiler.Node{ID: "req", Type: compiler.NodeRequest})

	for i := 0; i < numBranches; i++ {
		condID := fmt.Sprintf("cond_%d", i)
		termID := fmt.Sprintf("term_%d", i)

		condData, _ := json.Marshal(generateCondition())
		payload.Nodes = append(payload.Nodes,
			compiler.Node{ID: condID, Type: compiler.NodeCondition, Data: condData},
			generateTerminal(termID))
		payload.Edges = append(payload.Edges,
			compiler.Edge{ID: fmt.Sprintf("e_req_%d", i), Source: "req", SourceHandle: compiler.PortRequest,
				Target: condID, TargetHandle: compiler.PortIn},
			compiler.Edge{ID: fmt.Sprintf("e_term_%d", i), Source: condID, SourceHandle: compiler.PortTrue,
				Target: termID, TargetHandle: compiler.PortTrigger})
	}
	return payload
}

func packPayload(payload *compiler.GraphPayload, raw bool) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if raw {
		return []byte("raw:" + base64.StdEncoding.EncodeToString(jsonData)), nil
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(jsonData); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return []byte(base64.StdEncoding.EncodeToString(buf.Bytes())), nil
}

func main() {
	numBranches, outputFile, raw := parseFlags(os.Args[1:])

	payload := generatePayload(numBranches)
	if _, err := compiler.Validate(payload); err != nil {
		fmt.Printf("Generated payload failed validation: %v\n", err)
		os.Exit(1)
	}

	packed, err := packPayload(payload, raw)
	if err != nil {
		fmt.Printf("Error packing payload: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outputFile, packed, 0o644); err != nil {
		fmt.Printf("Error writing file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Wrote %d branches (%d bytes packed) to %s\n", numBranches, len(packed), outputFile)
}
