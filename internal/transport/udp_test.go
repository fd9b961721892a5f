package transport

import (
	"net/netip"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/v4/vnet"
)

// receiveWithin polls tr until a datagram arrives or the timeout elapses.
func receiveWithin(t *testing.T, tr Transport, timeout time.Duration) Datagram {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if d, ok := tr.TryReceive(); ok {
			return d
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no datagram received within %s", timeout)
	return Datagram{}
}

// newVirtualNet builds a one-router virtual LAN and returns a network per IP.
func newVirtualNet(t *testing.T, ips ...string) []*vnet.Net {
	t.Helper()

	router, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          "10.0.0.0/24",
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}

	nets := make([]*vnet.Net, len(ips))
	for i, ip := range ips {
		nw, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{ip}})
		if err != nil {
			t.Fatalf("NewNet(%s): %v", ip, err)
		}
		if err := router.AddNet(nw); err != nil {
			t.Fatalf("AddNet(%s): %v", ip, err)
		}
		nets[i] = nw
	}

	if err := router.Start(); err != nil {
		t.Fatalf("router start: %v", err)
	}
	t.Cleanup(func() { router.Stop() }) //nolint:errcheck

	return nets
}

func TestUDPOverVirtualNetwork(t *testing.T) {
	nets := newVirtualNet(t, "10.0.0.1", "10.0.0.2")

	a, err := ListenOn(nets[0], "10.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenOn a: %v", err)
	}
	defer a.Close()

	b, err := ListenOn(nets[1], "10.0.0.2:0")
	if err != nil {
		t.Fatalf("ListenOn b: %v", err)
	}
	defer b.Close()

	if a.LocalAddr().Port() == 0 {
		t.Fatal("expected an assigned ephemeral port")
	}

	if err := a.Send([]byte{0}, b.LocalAddr()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	d := receiveWithin(t, b, 2*time.Second)
	if d.From != a.LocalAddr() {
		t.Errorf("From = %s, want %s", d.From, a.LocalAddr())
	}
	if len(d.Data) != 1 || d.Data[0] != 0 {
		t.Errorf("Data = %v, want [0]", d.Data)
	}
}

func TestUDPLoopback(t *testing.T) {
	a, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer a.Close()

	b, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer b.Close()

	payload := []byte{4, 'h', 'i'}
	if err := a.Send(payload, b.LocalAddr()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	d := receiveWithin(t, b, 2*time.Second)
	if string(d.Data) != string(payload) {
		t.Errorf("Data = %v, want %v", d.Data, payload)
	}
	if d.From != netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), a.LocalAddr().Port()) {
		t.Errorf("From = %s", d.From)
	}
}

func TestUDPTryReceiveEmpty(t *testing.T) {
	a, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer a.Close()

	if _, ok := a.TryReceive(); ok {
		t.Error("TryReceive on an idle socket returned a datagram")
	}
}

func TestUDPDropsOversizedDatagrams(t *testing.T) {
	a, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer a.Close()
	b, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer b.Close()

	a.Send(make([]byte, 2048), b.LocalAddr()) //nolint:errcheck
	a.Send([]byte{0}, b.LocalAddr())          //nolint:errcheck

	d := receiveWithin(t, b, 2*time.Second)
	if len(d.Data) != 1 {
		t.Errorf("first delivered datagram has %d bytes, want the 1-byte Hello", len(d.Data))
	}
}

func TestUDPSendAfterClose(t *testing.T) {
	a, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := a.Send([]byte{0}, a.LocalAddr()); err != ErrClosed {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
	// Close is idempotent.
	if err := a.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}
