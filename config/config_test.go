package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.ChunkDuration != 60 {
		t.Fatalf("ChunkDuration = %d, want 60", cfg.ChunkDuration)
	}
	if cfg.HarvestQueues.Pending != "vod:harvest" {
		t.Fatalf("harvest pending queue = %q", cfg.HarvestQueues.Pending)
	}
	if cfg.HarvestQueues.Processing != "vod:harvest:processing" {
		t.Fatalf("harvest processing queue = %q", cfg.HarvestQueues.Processing)
	}
	if cfg.HarvestQueues.Failed != "vod:harvest:failed" {
		t.Fatalf("harvest failed queue = %q", cfg.HarvestQueues.Failed)
	}
}

func TestLoad_QueuePrefix(t *testing.T) {
	t.Setenv("REDIS_PREFIX", "staging:")

	cfg := Load()
	if cfg.ChunkQueues.Pending != "staging:vod:chunks" {
		t.Fatalf("chunk pending queue = %q", cfg.ChunkQueues.Pending)
	}
	if cfg.ChunkQueues.Failed != "staging:vod:chunks:failed" {
		t.Fatalf("chunk failed queue = %q", cfg.ChunkQueues.Failed)
	}
}

func TestLoad_ChunkDurationOverride(t *testing.T) {
	t.Setenv("CHUNK_DURATION", "300")

	cfg := Load()
	if cfg.ChunkDuration != 300 {
		t.Fatalf("ChunkDuration = %d, want 300", cfg.ChunkDuration)
	}
}
