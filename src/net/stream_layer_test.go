package net

import (
	"net"
	"testing"
	"time"
)

func TestTCPStreamLayer_WithAdvertise(t *testing.T) {
	layer, err := NewTCPStreamLayer("0.0.0.0:0", "127.0.0.1:12345")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer layer.Close()
	if layer.AdvertiseAddr() != "127.0.0.1:12345" {
		t.Fatalf("bad: %v", layer.AdvertiseAddr())
	}
}

func TestTCPStreamLayer_BadAdvertise(t *testing.T) {
	if _, err := NewTCPStreamLayer("127.0.0.1:0", "not an address"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestTCPStreamLayer_DialAccept(t *testing.T) {
	layer, err := NewTCPStreamLayer("127.0.0.1:0", "")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer layer.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := layer.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	c, err := layer.Dial(layer.AdvertiseAddr(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	select {
	case s := <-accepted:
		s.Close()
	case <-time.After(5 * time.Second):
		t.Fatal("nothing accepted")
	}
}

func TestInmemNetwork(t *testing.T) {
	network := NewInmemNetwork()
	a, err := network.Listen("10.0.0.1:9333")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := network.Listen("10.0.0.1:9333"); err == nil {
		t.Fatal("address reused")
	}

	if _, err := a.Dial("10.0.0.9:9333", time.Second); err == nil {
		t.Fatal("dial to nobody succeeded")
	}

	b, err := network.Listen("10.0.0.2:9333")
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		c, err := b.Accept()
		if err == nil {
			c.Write([]byte("hi"))
		}
	}()
	c, err := a.Dial("10.0.0.2:9333", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 2)
	if _, err := c.Read(buf); err != nil || string(buf) != "hi" {
		t.Fatalf("read %q, %v", buf, err)
	}
	if c.RemoteAddr().String() != "10.0.0.2:9333" {
		t.Fatalf("remote address: %s", c.RemoteAddr())
	}

	b.Close()
	if _, err := b.Accept(); err != ErrLayerClosed {
		t.Fatalf("accept after close: %v", err)
	}
	if _, err := a.Dial("10.0.0.2:9333", time.Second); err == nil {
		t.Fatal("dial to closed layer succeeded")
	}
}
