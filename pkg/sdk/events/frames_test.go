package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestProcessWriteFrameRoundTrip(t *testing.T) {
	data, err := json.Marshal(NewProcessWriteFrame("srv1", "foo"))
	if err != nil {
		t.Fatalf("Failed to marshal frame: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Failed to unmarshal frame: %v", err)
	}
	if len(raw) != 3 {
		t.Errorf("Expected exactly 3 keys, got %v", raw)
	}
	if raw["type"] != "server_process_write" || raw["server"] != "srv1" || raw["data"] != "foo" {
		t.Errorf("Unexpected frame: %v", raw)
	}

	decoded, err := DecodeOutbound(data)
	if err != nil {
		t.Fatalf("DecodeOutbound failed: %v", err)
	}
	f, ok := decoded.(ProcessWriteFrame)
	if !ok {
		t.Fatalf("Expected ProcessWriteFrame, got %T", decoded)
	}
	if f != NewProcessWriteFrame("srv1", "foo") {
		t.Errorf("Round trip mismatch: %+v", f)
	}
}

func TestDecodeChangeState(t *testing.T) {
	ev, err := DecodeFrame([]byte(`{"type":"event","event_type":"server_change_state","server":"srv1","old_state":"stopped","new_state":"STARTING"}`))
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	sc, ok := ev.(*ServerChangeStateEvent)
	if !ok {
		t.Fatalf("Expected *ServerChangeStateEvent, got %T", ev)
	}
	if sc.ServerID != "srv1" || sc.OldState != StateStopped || sc.NewState != StateStarting {
		t.Errorf("Unexpected event: %+v", sc)
	}
}

func TestDecodePerformance(t *testing.T) {
	frame := `{"type":"progress","progress_type":"performance","timestamp":1700000000.5,
		"servers":[{"id":"a","game":{"ticks":20},"jvm":{"cpu_usage":12.5,"mem_total":2048,"mem_used":1024}},{"id":"b","game":null,"jvm":null}],
		"system":{"cpu":{"usage":40,"count":8},"memory":{"available":100,"swap_available":5,"swap_total":10,"total":200}}}`
	ev, err := DecodeFrame([]byte(frame))
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	p := ev.(*PerformanceProgress)
	if len(p.Servers) != 2 {
		t.Fatalf("Expected 2 servers, got %d", len(p.Servers))
	}
	a := p.Server("a")
	if a == nil || a.Game.Ticks != 20 || a.JVM.CPUUsage != 12.5 || a.JVM.MemUsed != 1024 {
		t.Errorf("Unexpected server a: %+v", a)
	}
	if b := p.Server("b"); b == nil || b.Game != nil || b.JVM != nil {
		t.Errorf("Expected server b without stats, got %+v", b)
	}
	if p.System.CPUCount != 8 || p.System.MemTotal != 200 || p.System.SwapTotal != 10 {
		t.Errorf("Unexpected system snapshot: %+v", p.System)
	}
	want := time.Unix(1700000000, 500000000)
	if !p.Timestamp.Equal(want) {
		t.Errorf("Expected timestamp %v, got %v", want, p.Timestamp)
	}
}

func TestDecodeFileTask(t *testing.T) {
	ev, err := DecodeFrame([]byte(`{"type":"event","event_type":"file_task_end","task":{"id":7,"type":"copy","progress":null,"result":"success","src":"/a.txt","dst":"/b.txt","server":null}}`))
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	ft := ev.(*FileTaskEvent)
	if ft.Kind() != KindFileTaskEnd {
		t.Errorf("Expected kind %s, got %s", KindFileTaskEnd, ft.Kind())
	}
	if ft.TaskID != 7 || ft.Src != "/a.txt" || ft.Dst != "/b.txt" || ft.ServerID != "" || ft.Progress != nil {
		t.Errorf("Unexpected event: %+v", ft)
	}
	if !ft.Result.Terminal() || ft.Type != FileEventCopy {
		t.Errorf("Unexpected result/type: %s/%s", ft.Result, ft.Type)
	}
}

func TestDecodeUnknownFrames(t *testing.T) {
	frames := []string{
		`{"type":"progress","progress_type":"disk"}`,
		`{"type":"event","event_type":"plugin_loaded"}`,
		`{"type":"hello"}`,
		`{}`,
	}
	for _, f := range frames {
		if _, err := DecodeFrame([]byte(f)); err != ErrUnknownFrame {
			t.Errorf("Expected ErrUnknownFrame for %s, got %v", f, err)
		}
	}
	if _, err := DecodeFrame([]byte(`not json`)); err == nil {
		t.Error("Expected error for malformed frame")
	}
}

func TestParseServerState(t *testing.T) {
	cases := map[string]ServerState{
		"RUNNING":  StateRunning,
		"build":    StateBuild,
		" stopped": StateStopped,
		"exploded": StateUnknown,
		"":         StateUnknown,
	}
	for in, want := range cases {
		if got := ParseServerState(in); got != want {
			t.Errorf("ParseServerState(%q) = %s, want %s", in, got, want)
		}
	}
}
