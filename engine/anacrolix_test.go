package engine

import (
	"testing"

	"github.com/anacrolix/torrent"
)

func testAnacrolixClient(t *testing.T) *anacrolixClient {
	t.Helper()
	cfg := torrent.NewDefaultClientConfig()
	cfg.DataDir = t.TempDir()
	cfg.ListenPort = 0
	cfg.NoDHT = true
	cfg.DisableTrackers = true
	cfg.NoDefaultPortForwarding = true
	cl, err := torrent.NewClient(cfg)
	if err != nil {
		t.Fatal(err)
	}
	a := &anacrolixClient{client: cl}
	t.Cleanup(func() { a.Close() })
	return a
}

func (a *anacrolixClient) storageCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.storages)
}

func TestDuplicateAddSharesStorage(t *testing.T) {
	a := testAnacrolixClient(t)

	first, err := a.AddTorrent(ihA, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	dup, err := a.AddTorrent(ihA, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if first.InfoHash() != ihA || dup.InfoHash() != ihA {
		t.Fatalf("hashes = %s %s", first.InfoHash(), dup.InfoHash())
	}
	if n := a.storageCount(); n != 1 {
		t.Fatalf("storages = %d, want 1", n)
	}

	// whichever handle is dropped last releases the storage
	dup.Drop()
	if n := a.storageCount(); n != 0 {
		t.Errorf("storages after drop = %d, want 0", n)
	}
	first.Drop()
}

func TestAddWithoutDirUsesClientStorage(t *testing.T) {
	a := testAnacrolixClient(t)
	h, err := a.AddTorrent(ihB, "")
	if err != nil {
		t.Fatal(err)
	}
	if n := a.storageCount(); n != 0 {
		t.Errorf("storages = %d, want 0", n)
	}
	h.Drop()
}
