/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
// Command sharddb-cli is a minimal, single-command client: it boots an
// embedded router and a small in-process storage fleet over
// pkg/channel's reference transport (the real shared-memory channel
// is out of scope per spec.md §1), issues exactly one operation
// through client.Stub, prints the result, and exits. It is
// deliberately NOT the interactive menu/batch-file shell spec.md §6
// describes — that CLI is an external collaborator outside the core's
// scope; this is just a thin demonstration of ClientStub wiring.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sharddb/sharddb/pkg/channel"
	"github.com/sharddb/sharddb/pkg/client"
	"github.com/sharddb/sharddb/pkg/codec"
	"github.com/sharddb/sharddb/pkg/logging"
	"github.com/sharddb/sharddb/pkg/peer"
	"github.com/sharddb/sharddb/pkg/recordkey"
	"github.com/sharddb/sharddb/pkg/router"
)

var (
	op       string
	database string
	schema   string
	table    string
	key      string
	record   codec.Record
)

var rootCmd = &cobra.Command{
	Use:   "sharddb-cli",
	Short: "Issue one sharddb operation against an embedded demo cluster",
	Long: `sharddb-cli boots a small router+peer cluster in-process and issues
a single operation (--op) against it, the way a real client would talk
to a standalone router over the shared-memory transport.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&op, "op", "", "ADD | CONTAINS | REMOVE | GET_KEY | DELETE_DATABASE | DELETE_SCHEMA | DELETE_TABLE (required)")
	rootCmd.Flags().StringVar(&database, "db", "", "database name")
	rootCmd.Flags().StringVar(&schema, "schema", "", "schema name")
	rootCmd.Flags().StringVar(&table, "table", "", "table name")
	rootCmd.Flags().StringVar(&key, "key", "", "record key as \"contest_id,candidate_id\" (required for CONTAINS/REMOVE/GET_KEY)")
	rootCmd.Flags().Int64Var(&record.ContestID, "contest-id", 0, "ADD: record's contest id")
	rootCmd.Flags().Int64Var(&record.CandidateID, "candidate-id", 0, "ADD: record's candidate id")
	rootCmd.Flags().StringVar(&record.LastName, "last-name", "", "ADD: record field")
	rootCmd.Flags().StringVar(&record.FirstName, "first-name", "", "ADD: record field")
	rootCmd.Flags().MarkHidden("contest-id")
	rootCmd.Flags().MarkHidden("candidate-id")
	_ = rootCmd.MarkFlagRequired("op")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	sink := logging.NewConsoleSink(logging.Warning)

	rt := router.New(sink)
	clientCh, clientRouterCh := channel.NewPair(4)
	reqA, reqB := channel.NewPair(4)
	reshardA, reshardB := channel.NewPair(4)

	name := rt.RegisterStorage(reqA, reshardA)
	id, err := peer.ParsePeerID(name)
	if err != nil {
		return err
	}
	sp := peer.New(id, 4, 8, 0, reqB, reshardB, sink)
	rt.RegisterClient(clientRouterCh)

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				tickPeerWithRecover(sp, sink)
				rt.Tick()
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()
	defer close(stop)

	stub := client.New(clientCh)
	defer stub.Close()

	result, err := dispatch(stub)
	if err != nil {
		return err
	}
	fmt.Println(result)
	return nil
}

// tickPeerWithRecover runs one StoragePeer.Tick, converting a
// structural-invariant panic (spec.md §7: "structural violations abort
// the peer") into a CRITICAL log line and a clean process exit, rather
// than letting a raw Go panic unwind past the tick loop.
func tickPeerWithRecover(sp *peer.StoragePeer, sink logging.Sink) {
	defer func() {
		if r := recover(); r != nil {
			sink.Emit(logging.Critical, "storage peer aborted on structural invariant violation", map[string]any{"panic": fmt.Sprint(r)})
			os.Exit(1)
		}
	}()
	sp.Tick()
}

func dispatch(stub *client.Stub) (string, error) {
	switch op {
	case "ADD":
		ok, err := stub.Add(database, schema, table, record)
		return boolResult(ok, err)
	case "CONTAINS":
		k, err := parseKey(key)
		if err != nil {
			return "", err
		}
		ok, err := stub.Contains(database, schema, table, k)
		return boolResult(ok, err)
	case "REMOVE":
		k, err := parseKey(key)
		if err != nil {
			return "", err
		}
		ok, err := stub.Remove(database, schema, table, k)
		return boolResult(ok, err)
	case "GET_KEY":
		k, err := parseKey(key)
		if err != nil {
			return "", err
		}
		rec, found, err := stub.GetKey(database, schema, table, k)
		if err != nil {
			return "", err
		}
		if !found {
			return "null", nil
		}
		return fmt.Sprintf("%+v", rec), nil
	case "DELETE_DATABASE":
		ok, err := stub.DeleteDatabase(database)
		return boolResult(ok, err)
	case "DELETE_SCHEMA":
		ok, err := stub.DeleteSchema(database, schema)
		return boolResult(ok, err)
	case "DELETE_TABLE":
		ok, err := stub.DeleteTable(database, schema, table)
		return boolResult(ok, err)
	default:
		return "", fmt.Errorf("unknown --op %q", op)
	}
}

func boolResult(ok bool, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if ok {
		return "true", nil
	}
	return "false", nil
}

func parseKey(s string) (recordkey.Key, error) {
	var contestID, candidateID int64
	if _, err := fmt.Sscanf(s, "%d,%d", &contestID, &candidateID); err != nil {
		return recordkey.Key{}, fmt.Errorf("--key must be \"contest_id,candidate_id\": %w", err)
	}
	return recordkey.Key{ContestID: contestID, CandidateID: candidateID}, nil
}
