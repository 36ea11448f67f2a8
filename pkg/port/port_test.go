package port

import "testing"

func TestConnectDisconnectSymmetry(t *testing.T) {
	a := New("a", 4)
	b := New("b", 4)
	Connect(a, b)
	if a.ConnectionCount() != 1 || b.ConnectionCount() != 1 {
		t.Fatalf("expected symmetric connection, got a=%d b=%d", a.ConnectionCount(), b.ConnectionCount())
	}
	if err := Disconnect(a, b); err != nil {
		t.Fatalf("unexpected error disconnecting: %v", err)
	}
	if a.ConnectionCount() != 0 || b.ConnectionCount() != 0 {
		t.Fatalf("expected both sides cleared, got a=%d b=%d", a.ConnectionCount(), b.ConnectionCount())
	}
}

func TestDisconnectWithoutConnectionReturnsError(t *testing.T) {
	a := New("a", 4)
	b := New("b", 4)
	if err := Disconnect(a, b); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestProcessSumsConnectedSources(t *testing.T) {
	src1 := New("src1", 4)
	src2 := New("src2", 4)
	dst := New("dst", 4)
	Connect(src1, dst)
	Connect(src2, dst)

	for i := range src1.Buffer() {
		src1.Buffer()[i] = 1.0
		src2.Buffer()[i] = 2.0
	}
	src1.finished = true
	src2.finished = true

	dst.Setup()
	dst.Process()

	for i, v := range dst.Buffer() {
		if v != 3.0 {
			t.Errorf("sample %d: expected 3.0, got %f", i, v)
		}
	}
}

func TestReadyWithNoConnections(t *testing.T) {
	p := New("solo", 4)
	p.Setup()
	if !p.Ready() {
		t.Error("expected a port with no connections to be immediately ready")
	}
}

func TestReadyWaitsForUnfinishedSource(t *testing.T) {
	src := New("src", 4)
	dst := New("dst", 4)
	Connect(src, dst)

	src.Setup()
	dst.Setup()
	if dst.Ready() {
		t.Error("expected dst to not be ready while src is unfinished")
	}
	src.Process()
	if !dst.Ready() {
		t.Error("expected dst to be ready once src has finished")
	}
}

func TestProcessIsIdempotentPerCycle(t *testing.T) {
	src := New("src", 2)
	dst := New("dst", 2)
	Connect(src, dst)
	src.Buffer()[0] = 5
	src.finished = true

	dst.Setup()
	dst.Process()
	dst.Process()
	if dst.Buffer()[0] != 5 {
		t.Errorf("expected second Process call to be a no-op, got %f", dst.Buffer()[0])
	}
}
