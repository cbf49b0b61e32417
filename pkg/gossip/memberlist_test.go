package gossip

import (
	"encoding/json"
	"net"
	"testing"

	"github.com/hashicorp/memberlist"
)

func TestDecodeMeta(t *testing.T) {
	data, _ := json.Marshal(map[string]interface{}{"dht_port": 8468})

	if port := decodeMeta(data); port != 8468 {
		t.Errorf("expected 8468, got %d", port)
	}
	if port := decodeMeta([]byte("{broken")); port != 0 {
		t.Errorf("expected 0 for broken meta, got %d", port)
	}
	if port := decodeMeta(nil); port != 0 {
		t.Errorf("expected 0 for empty meta, got %d", port)
	}
}

func TestGossipAdapter_NodeMeta(t *testing.T) {
	g := &GossipAdapter{dhtPort: 8469}

	data := g.NodeMeta(memberlist.MetaMaxSize)
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}

	if m["dht_port"].(float64) != 8469 {
		t.Errorf("expected 8469, got %v", m["dht_port"])
	}

	if data := g.NodeMeta(2); data != nil {
		t.Errorf("expected nil meta over the limit, got %q", data)
	}
}

func TestDHTAddr(t *testing.T) {
	meta, _ := json.Marshal(nodeMeta{DHTPort: 8468})
	withMeta := &memberlist.Node{Addr: net.ParseIP("10.0.0.7"), Port: 7946, Meta: meta}
	if addr := dhtAddr(withMeta); addr != "10.0.0.7:8468" {
		t.Errorf("expected 10.0.0.7:8468, got %s", addr)
	}

	withoutMeta := &memberlist.Node{Addr: net.ParseIP("10.0.0.8"), Port: 7946}
	if addr := dhtAddr(withoutMeta); addr != "10.0.0.8:7946" {
		t.Errorf("expected 10.0.0.8:7946, got %s", addr)
	}
}

func TestNotifyJoin_CallsBackWithDHTAddr(t *testing.T) {
	g := &GossipAdapter{nodeID: "self"}
	got := make(chan string, 1)
	g.OnJoin(func(addr string) { got <- addr })

	meta, _ := json.Marshal(nodeMeta{DHTPort: 9000})
	g.NotifyJoin(&memberlist.Node{Name: "self", Addr: net.ParseIP("10.0.0.1"), Meta: meta})
	g.NotifyJoin(&memberlist.Node{Name: "peer", Addr: net.ParseIP("10.0.0.2"), Meta: meta})

	if addr := <-got; addr != "10.0.0.2:9000" {
		t.Errorf("expected 10.0.0.2:9000, got %s", addr)
	}
	select {
	case addr := <-got:
		t.Errorf("self join must not call back, got %s", addr)
	default:
	}
}
