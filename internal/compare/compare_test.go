package compare

import "testing"

func TestNewTargetClientRejectsRDBFile(t *testing.T) {
	_, err := newTargetClient(Config{TargetKind: "RDBFILE"})
	if err == nil {
		t.Fatal("expected error for RDBFILE target kind")
	}
}

func TestNewTargetClientRequiresAddr(t *testing.T) {
	if _, err := newTargetClient(Config{TargetKind: "SINGLE"}); err == nil {
		t.Error("expected error when no target addr given")
	}
	if _, err := newTargetClient(Config{TargetKind: "CLUSTER"}); err == nil {
		t.Error("expected error when no cluster addrs given")
	}
}

func TestNewTargetClientBuildsSingle(t *testing.T) {
	c, err := newTargetClient(Config{TargetKind: "SINGLE", TargetAddrs: []string{"127.0.0.1:6379"}})
	if err != nil {
		t.Fatalf("newTargetClient: %v", err)
	}
	defer c.Close()
}

func TestNewTargetClientBuildsCluster(t *testing.T) {
	c, err := newTargetClient(Config{TargetKind: "CLUSTER", TargetAddrs: []string{"127.0.0.1:7000", "127.0.0.1:7001"}})
	if err != nil {
		t.Fatalf("newTargetClient: %v", err)
	}
	defer c.Close()
}
