// Command cli is an illustrative operator client for the coordinator/node
// HTTP surface (§6): it issues the same requests an operator would script
// by hand against /dkg/start, /grant/issue, and /wallet/{id}/send. It
// carries no cryptography and no persistent state of its own — every
// subcommand is a thin HTTP round trip, kept simple on purpose since the
// ceremony and signing logic it drives is the part that matters.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "dkg-start":
		err = runDKGStart(os.Args[2:])
	case "grant-issue":
		err = runGrantIssue(os.Args[2:])
	case "wallet-send":
		err = runWalletSend(os.Args[2:])
	case "version":
		fmt.Printf("tss-cli %s\n", version)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "tss-cli: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: tss-cli <command> [flags]

Commands:
  dkg-start     Initiate a DKG ceremony on a node (POST /dkg/start)
  grant-issue   Request a signing grant from the coordinator (POST /grant/issue)
  wallet-send   Assemble and sign a spend from a node's wallet (POST /wallet/{id}/send)
  version       Print version information
`)
}

func runDKGStart(args []string) error {
	fs := flag.NewFlagSet("dkg-start", flag.ExitOnError)
	nodeURL := fs.String("node", "http://127.0.0.1:8090", "node HTTP base URL")
	protocol := fs.String("protocol", "cggmp24", "cggmp24 or frost")
	partyIndex := fs.Int("party-index", 0, "this party's index")
	threshold := fs.Int("threshold", 2, "signing threshold")
	participants := fs.String("participants", "0,1,2", "comma-separated party indices")
	fs.Parse(args)

	body := map[string]any{
		"protocol":     *protocol,
		"party_index":  *partyIndex,
		"threshold":    *threshold,
		"participants": parseIntList(*participants),
	}
	return postAndPrint(*nodeURL+"/dkg/start", body, nil)
}

func runGrantIssue(args []string) error {
	fs := flag.NewFlagSet("grant-issue", flag.ExitOnError)
	coordinatorURL := fs.String("coordinator", "http://127.0.0.1:8090", "coordinator HTTP base URL")
	walletID := fs.String("wallet-id", "", "wallet to authorize a signature for")
	messageHash := fs.String("message-hash", "", "32-byte sighash, hex-encoded")
	threshold := fs.Int("threshold", 2, "signing threshold")
	participants := fs.String("participants", "0,1", "comma-separated party indices")
	lifetime := fs.Int("lifetime-seconds", 300, "grant validity window")
	nodeID := fs.String("node-id", "", "registered node_id presenting this request")
	certToken := fs.String("cert-token", "", "this node's cert_token")
	nodeParty := fs.Int("node-party-index", 0, "this node's party_index")
	fs.Parse(args)

	if *walletID == "" || *messageHash == "" {
		return fmt.Errorf("wallet-id and message-hash are required")
	}

	body := map[string]any{
		"wallet_id":        *walletID,
		"message_hash_hex": *messageHash,
		"threshold":        *threshold,
		"participants":     parseIntList(*participants),
		"lifetime_seconds": *lifetime,
	}
	headers := authHeaders(*nodeID, *certToken, *nodeParty)
	return postAndPrint(*coordinatorURL+"/grant/issue", body, headers)
}

func runWalletSend(args []string) error {
	fs := flag.NewFlagSet("wallet-send", flag.ExitOnError)
	nodeURL := fs.String("node", "http://127.0.0.1:8090", "node HTTP base URL")
	walletID := fs.String("wallet-id", "", "wallet to spend from")
	requestFile := fs.String("request-file", "", "path to a JSON file holding the walletSendRequest body")
	nodeID := fs.String("node-id", "", "registered node_id presenting this request")
	certToken := fs.String("cert-token", "", "this node's cert_token")
	nodeParty := fs.Int("node-party-index", 0, "this node's party_index")
	fs.Parse(args)

	if *walletID == "" || *requestFile == "" {
		return fmt.Errorf("wallet-id and request-file are required")
	}

	raw, err := os.ReadFile(*requestFile)
	if err != nil {
		return fmt.Errorf("read request file: %w", err)
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return fmt.Errorf("parse request file as JSON: %w", err)
	}

	headers := authHeaders(*nodeID, *certToken, *nodeParty)
	return postAndPrint(fmt.Sprintf("%s/wallet/%s/send", *nodeURL, *walletID), body, headers)
}

func authHeaders(nodeID, certToken string, partyIndex int) map[string]string {
	if nodeID == "" || certToken == "" {
		return nil
	}
	return map[string]string{
		"X-Node-ID":     nodeID,
		"X-Cert-Token":  certToken,
		"X-Party-Index": fmt.Sprintf("%d", partyIndex),
	}
}

func postAndPrint(url string, body map[string]any, headers map[string]string) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(raw))
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("request returned status %d", resp.StatusCode)
	}
	return nil
}

func parseIntList(s string) []int {
	var out []int
	cur := 0
	has := false
	flush := func() {
		if has {
			out = append(out, cur)
		}
		cur, has = 0, false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			cur = cur*10 + int(r-'0')
			has = true
		case r == ',':
			flush()
		}
	}
	flush()
	return out
}
