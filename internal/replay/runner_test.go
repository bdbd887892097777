package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"clpool/internal/model"
	"clpool/internal/pool"
	"clpool/internal/storage"
)

const sqrtPriceOne = "79228162514264337593543950336"

var (
	replayOwner  = "0x00000000000000000000000000000000000000aa"
	replayLP     = "0x00000000000000000000000000000000000000bb"
	replayTrader = "0x00000000000000000000000000000000000000cc"
)

func newReplayPool(t *testing.T) *pool.Pool {
	t.Helper()
	p, err := pool.New(pool.Config{
		Token0:      common.HexToAddress("0x0000000000000000000000000000000000000001"),
		Token1:      common.HexToAddress("0x0000000000000000000000000000000000000002"),
		FeePips:     3000,
		TickSpacing: 60,
		Owner:       common.HexToAddress(replayOwner),
	}, nil, nil)
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}
	return p
}

func writeOps(t *testing.T, dir string, ops []model.Operation) string {
	t.Helper()
	path := filepath.Join(dir, "ops.jsonl")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create ops file: %v", err)
	}
	defer file.Close()
	for _, op := range ops {
		line, err := json.Marshal(op)
		if err != nil {
			t.Fatalf("marshal op: %v", err)
		}
		if _, err := file.Write(append(line, '\n')); err != nil {
			t.Fatalf("write op: %v", err)
		}
	}
	return path
}

func readResults(t *testing.T, path string) []model.ApplyResult {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open results: %v", err)
	}
	defer file.Close()

	var results []model.ApplyResult
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var result model.ApplyResult
		if err := json.Unmarshal(scanner.Bytes(), &result); err != nil {
			t.Fatalf("parse result: %v", err)
		}
		results = append(results, result)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan results: %v", err)
	}
	return results
}

func readEvents(t *testing.T, path string) []model.Event {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open events: %v", err)
	}
	defer file.Close()

	var events []model.Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var event model.Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			t.Fatalf("parse event: %v", err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan events: %v", err)
	}
	return events
}

func baseOps() []model.Operation {
	return []model.Operation{
		{Kind: model.OpInitialize, Caller: replayOwner, SqrtPriceX96: sqrtPriceOne},
		{Kind: model.OpSetProtocolFee, Caller: replayOwner, FeeDenom0: 4, FeeDenom1: 4},
		{Kind: model.OpSetReferrerFee, Caller: replayOwner, FeeDenom0: 10, FeeDenom1: 10},
		{Kind: model.OpMint, Caller: replayLP, TickLower: -887220, TickUpper: 887220, Amount: "1000000000000000000"},
		{Kind: model.OpSwap, Caller: replayTrader, ZeroForOne: true, AmountSpecified: "1000000000000000"},
		{Kind: model.OpBurn, Caller: replayLP, TickLower: -887220, TickUpper: 887220, Amount: "1000000000000000000"},
		{Kind: model.OpCollect, Caller: replayLP, TickLower: -887220, TickUpper: 887220},
	}
}

func newRunnerForDir(t *testing.T, dir string, p *pool.Pool) (*Runner, string, string) {
	t.Helper()
	eventsPath := filepath.Join(dir, "events.jsonl")
	resultsPath := filepath.Join(dir, "results.jsonl")
	runner := NewRunner(RunConfig{
		OpsPath:           filepath.Join(dir, "ops.jsonl"),
		RunName:           "test",
		BatchSize:         2,
		CheckpointPath:    filepath.Join(dir, "checkpoint.json"),
		CheckpointEnabled: true,
		MaxRetries:        1,
		RetryBackoff:      time.Millisecond,
	}, p, storage.NewJsonlStorage(eventsPath, resultsPath), nil)
	return runner, eventsPath, resultsPath
}

func TestRunnerReplaysOps(t *testing.T) {
	dir := t.TempDir()
	writeOps(t, dir, baseOps())
	runner, eventsPath, resultsPath := newRunnerForDir(t, dir, newReplayPool(t))

	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Operations != 7 || summary.Failed != 0 {
		t.Fatalf("summary: %+v", summary)
	}
	if summary.SwapCount != 1 {
		t.Fatalf("swap count: %d", summary.SwapCount)
	}
	if summary.Volume0 == "0" || summary.Fees0 == "0" {
		t.Fatalf("volume/fees not accumulated: %+v", summary)
	}

	results := readResults(t, resultsPath)
	if len(results) != 7 {
		t.Fatalf("result count: %d", len(results))
	}
	for _, result := range results {
		if !result.OK {
			t.Fatalf("op %d (%s) failed: %s", result.Index, result.Kind, result.Error)
		}
	}

	events := readEvents(t, eventsPath)
	if len(events) == 0 {
		t.Fatal("no events journaled")
	}
	for i, event := range events {
		if event.Seq != uint64(i+1) {
			t.Fatalf("event %d has seq %d", i, event.Seq)
		}
	}

	cp, ok, err := NewCheckpointStore(filepath.Join(dir, "checkpoint.json"), true).Load()
	if err != nil || !ok {
		t.Fatalf("checkpoint load: ok=%v err=%v", ok, err)
	}
	if cp.LastAppliedIndex != 7 {
		t.Fatalf("checkpoint index: %d", cp.LastAppliedIndex)
	}
	if cp.LastEventSeq != uint64(len(events)) {
		t.Fatalf("checkpoint seq: %d, want %d", cp.LastEventSeq, len(events))
	}
}

func TestRunnerRecordsFailures(t *testing.T) {
	dir := t.TempDir()
	writeOps(t, dir, []model.Operation{
		// Swap before initialize fails but does not abort the run.
		{Kind: model.OpSwap, Caller: replayTrader, ZeroForOne: true, AmountSpecified: "1000"},
		{Kind: "unknown_kind", Caller: replayTrader},
		{Kind: model.OpInitialize, Caller: replayOwner, SqrtPriceX96: sqrtPriceOne},
		{Kind: model.OpSetProtocolFee, Caller: replayTrader, FeeDenom0: 4, FeeDenom1: 4}, // not the owner
	})
	runner, _, resultsPath := newRunnerForDir(t, dir, newReplayPool(t))

	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Operations != 4 || summary.Failed != 3 {
		t.Fatalf("summary: %+v", summary)
	}

	results := readResults(t, resultsPath)
	if len(results) != 4 {
		t.Fatalf("result count: %d", len(results))
	}
	if results[0].OK || results[1].OK || results[3].OK {
		t.Fatalf("expected failures: %+v", results)
	}
	if !results[2].OK {
		t.Fatalf("initialize failed: %s", results[2].Error)
	}
}

func TestRunnerResumesFromCheckpoint(t *testing.T) {
	dir := t.TempDir()
	writeOps(t, dir, baseOps())
	runner, _, resultsPath := newRunnerForDir(t, dir, newReplayPool(t))

	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	firstResults := readResults(t, resultsPath)

	// A resumed run over the same stream journals nothing new; the summary
	// still covers the whole stream since checkpointed ops are reapplied.
	resumed, _, _ := newRunnerForDir(t, dir, newReplayPool(t))
	summary, err := resumed.Run(context.Background())
	if err != nil {
		t.Fatalf("resumed Run: %v", err)
	}
	if summary.Operations != 7 || summary.Failed != 0 {
		t.Fatalf("resumed summary: %+v", summary)
	}
	if got := readResults(t, resultsPath); len(got) != len(firstResults) {
		t.Fatalf("results grew on resume: %d -> %d", len(firstResults), len(got))
	}
}

func TestRunnerResumesMidStream(t *testing.T) {
	dir := t.TempDir()
	writeOps(t, dir, baseOps())

	// Checkpoint as if a prior run flushed through op 4 (the mint) and died
	// before the swap/burn/collect tail.
	if err := NewCheckpointStore(filepath.Join(dir, "checkpoint.json"), true).Save(4, 10); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	runner, eventsPath, resultsPath := newRunnerForDir(t, dir, newReplayPool(t))
	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The tail only works if the pool state from ops 1-4 was rebuilt: the
	// swap needs the initialize and the mint, the burn needs the position.
	if summary.Failed != 0 {
		t.Fatalf("resumed tail failed: %+v", summary)
	}
	if summary.Operations != 7 || summary.SwapCount != 1 {
		t.Fatalf("summary should cover the whole stream: %+v", summary)
	}

	results := readResults(t, resultsPath)
	if len(results) != 3 {
		t.Fatalf("result count: %d, want only the tail", len(results))
	}
	for i, result := range results {
		if result.Index != uint64(i+5) {
			t.Fatalf("result %d has index %d", i, result.Index)
		}
		if !result.OK {
			t.Fatalf("op %d (%s) failed: %s", result.Index, result.Kind, result.Error)
		}
	}

	// Event sequence continues from the checkpointed value with no gaps and
	// no re-journaled events from the reapplied prefix.
	events := readEvents(t, eventsPath)
	if len(events) == 0 {
		t.Fatal("no events journaled")
	}
	for i, event := range events {
		if event.Seq != uint64(11+i) {
			t.Fatalf("event %d has seq %d", i, event.Seq)
		}
	}

	cp, ok, err := NewCheckpointStore(filepath.Join(dir, "checkpoint.json"), true).Load()
	if err != nil || !ok {
		t.Fatalf("checkpoint load: ok=%v err=%v", ok, err)
	}
	if cp.LastAppliedIndex != 7 {
		t.Fatalf("checkpoint index: %d", cp.LastAppliedIndex)
	}
}

func TestCheckpointStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewCheckpointStore(filepath.Join(dir, "cp.json"), true)

	if _, ok, err := store.Load(); err != nil || ok {
		t.Fatalf("empty load: ok=%v err=%v", ok, err)
	}
	if err := store.Save(42, 99); err != nil {
		t.Fatalf("Save: %v", err)
	}
	cp, ok, err := store.Load()
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if cp.LastAppliedIndex != 42 || cp.LastEventSeq != 99 {
		t.Fatalf("checkpoint: %+v", cp)
	}

	disabled := NewCheckpointStore(filepath.Join(dir, "cp.json"), false)
	if _, ok, err := disabled.Load(); err != nil || ok {
		t.Fatalf("disabled load: ok=%v err=%v", ok, err)
	}
}

func TestSummaryAccumulator(t *testing.T) {
	acc := newSummaryAccumulator("run", 3000)
	acc.addResult(
		model.Operation{Kind: model.OpSwap},
		model.ApplyResult{OK: true, Amount0: "1000000", Amount1: "-997000"},
	)
	acc.addResult(model.Operation{Kind: model.OpMint}, model.ApplyResult{OK: true})
	acc.addResult(model.Operation{Kind: model.OpSwap}, model.ApplyResult{OK: false, Error: "boom"})

	summary := acc.finish()
	if summary.Operations != 3 || summary.Failed != 1 || summary.SwapCount != 1 {
		t.Fatalf("summary: %+v", summary)
	}
	if summary.Volume0 != "1000000" || summary.Volume1 != "997000" {
		t.Fatalf("volumes: %s / %s", summary.Volume0, summary.Volume1)
	}
	// 0.3% of the input side.
	if summary.Fees0 != "3000" || summary.Fees1 != "0" {
		t.Fatalf("fees: %s / %s", summary.Fees0, summary.Fees1)
	}
}
