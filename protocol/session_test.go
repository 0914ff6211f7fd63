package protocol

import (
	"bytes"
	"math/rand"
	"testing"
)

func testConfig(seed uint64) SyncConfig {
	cfg := DefaultConfig()
	cfg.Seed = seed
	return cfg
}

func runSync(t *testing.T, cfg SyncConfig, fileA, fileB []byte) ([]byte, Report) {
	t.Helper()
	initiator, err := NewInitiatorSession(cfg, bytes.NewReader(fileA))
	if err != nil {
		t.Fatalf("NewInitiatorSession: %v", err)
	}
	responder, err := NewResponderSession(cfg, bytes.NewReader(fileB))
	if err != nil {
		t.Fatalf("NewResponderSession: %v", err)
	}

	round1, err := initiator.Round1()
	if err != nil {
		t.Fatalf("Round1: %v", err)
	}
	round1Reply, err := responder.HandleRound1(round1)
	if err != nil {
		t.Fatalf("HandleRound1: %v", err)
	}
	round2, err := initiator.ConsumeRound1Reply(round1Reply)
	if err != nil {
		t.Fatalf("ConsumeRound1Reply: %v", err)
	}

	var outcome Round2Outcome
	for {
		round2Reply, err := responder.HandleRound2(round2)
		if err != nil {
			t.Fatalf("HandleRound2: %v", err)
		}
		outcome, err = initiator.ConsumeRound2Reply(round2Reply)
		if err != nil {
			t.Fatalf("ConsumeRound2Reply: %v", err)
		}
		if outcome.Done {
			break
		}
		round2 = outcome.RetryPayload
	}

	var out bytes.Buffer
	if err := initiator.Reconstruct(&out, outcome); err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	return out.Bytes(), initiator.Report
}

func TestSyncIdenticalFiles(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	data := make([]byte, 10000)
	rng.Read(data)

	out, report := runSync(t, testConfig(42), data, data)
	if !bytes.Equal(out, data) {
		t.Fatalf("reconstructed output does not match input for identical files")
	}
	if report.OnlyBBlocks != 0 {
		t.Errorf("identical files should carry zero only-B blocks, got %d", report.OnlyBBlocks)
	}
}

func TestSyncSmallLocalizedDiff(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	fileA := make([]byte, 100000)
	rng.Read(fileA)
	fileB := make([]byte, len(fileA))
	copy(fileB, fileA)
	for i := 50000; i < 50050; i++ {
		fileB[i] ^= 0xFF
	}

	out, report := runSync(t, testConfig(7), fileA, fileB)
	if !bytes.Equal(out, fileB) {
		t.Fatalf("reconstructed output does not match B's file")
	}
	if report.OnlyBBlocks == 0 || report.OnlyBBlocks > 4 {
		t.Errorf("expected a small number of only-B blocks, got %d", report.OnlyBBlocks)
	}
}

func TestSyncAppendedBlock(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	fileA := make([]byte, 50000)
	rng.Read(fileA)
	insertion := make([]byte, 1000)
	rng.Read(insertion)
	fileB := append(append(append([]byte{}, fileA[:30000]...), insertion...), fileA[30000:]...)

	out, _ := runSync(t, testConfig(9), fileA, fileB)
	if !bytes.Equal(out, fileB) {
		t.Fatalf("reconstructed output does not match B's file after insertion")
	}
}

func TestSyncEmptyFiles(t *testing.T) {
	out, report := runSync(t, testConfig(5), nil, nil)
	if len(out) != 0 {
		t.Fatalf("expected empty reconstruction, got %d bytes", len(out))
	}
	if report.OnlyBBlocks != 0 {
		t.Errorf("expected zero only-B blocks for empty files, got %d", report.OnlyBBlocks)
	}
}

func TestSyncMostlyDifferentFilesStaysWithinRetryCap(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	fileA := make([]byte, 200000)
	rng.Read(fileA)
	fileB := make([]byte, len(fileA))
	rng.Read(fileB) // almost entirely different: |A△B| is hundreds of blocks; any DecodeFailed retries must stay within the cap

	cfg := testConfig(13)
	out, report := runSync(t, cfg, fileA, fileB)
	if !bytes.Equal(out, fileB) {
		t.Fatalf("reconstructed output does not match B's file for mostly different files")
	}
	if report.Retries > cfg.RetryCap {
		t.Errorf("retries = %d exceeded cap %d", report.Retries, cfg.RetryCap)
	}
}
