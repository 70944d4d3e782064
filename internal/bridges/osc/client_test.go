package osc

import (
	"context"
	"errors"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/live-logic-core/internal/infrastructure/config"
)

// mockWorkstation is a fake workstation bridge. It listens on a real
// UDP socket, records every decoded request, and answers each one with
// whatever the handler returns, sent back to the requester's address.
type mockWorkstation struct {
	conn     *net.UDPConn
	handler  func(Message) []Message
	received []Message
	mu       sync.Mutex
	done     chan struct{}
}

func newMockWorkstation(t *testing.T, handler func(Message) []Message) *mockWorkstation {
	t.Helper()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("Failed to bind mock workstation: %v", err)
	}

	m := &mockWorkstation{
		conn:    conn,
		handler: handler,
		done:    make(chan struct{}),
	}
	go m.serve()
	return m
}

func (m *mockWorkstation) serve() {
	buf := make([]byte, 8192)
	for {
		select {
		case <-m.done:
			return
		default:
		}

		n, src, err := m.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}

		msg, err := ParseMessage(buf[:n])
		if err != nil {
			continue
		}

		m.mu.Lock()
		m.received = append(m.received, msg)
		m.mu.Unlock()

		if m.handler == nil {
			continue
		}
		for _, reply := range m.handler(msg) {
			data, err := reply.Encode()
			if err != nil {
				continue
			}
			m.conn.WriteToUDP(data, src)
		}
	}
}

func (m *mockWorkstation) Port() int {
	return m.conn.LocalAddr().(*net.UDPAddr).Port
}

func (m *mockWorkstation) Close() {
	close(m.done)
	m.conn.Close()
}

func (m *mockWorkstation) Received() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.received))
	copy(out, m.received)
	return out
}

// testConfig points the client at a mock workstation command port, with
// an ephemeral reply port and fast verify timing.
func testConfig(commandPort int) config.OSCConfig {
	return config.OSCConfig{
		Host:           "127.0.0.1",
		CommandPort:    commandPort,
		QueryTimeoutMS: 500,
		Verify: config.VerifyConfig{
			Retries:     3,
			BaseDelayMS: 1,
			MaxDelayMS:  10,
			Tolerance:   0.02,
		},
	}
}

// waitReceived polls until the mock has recorded at least n requests.
func waitReceived(t *testing.T, mock *mockWorkstation, n int) []Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msgs := mock.Received()
		if len(msgs) >= n {
			return msgs
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %d requests, have %d", n, len(mock.Received()))
	return nil
}

func TestConnectBindFailure(t *testing.T) {
	held, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		t.Fatalf("Failed to reserve port: %v", err)
	}
	defer held.Close()

	cfg := testConfig(19000)
	cfg.ReplyPort = held.LocalAddr().(*net.UDPAddr).Port

	if _, err := Connect(cfg); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestQueryTempo(t *testing.T) {
	mock := newMockWorkstation(t, func(msg Message) []Message {
		if msg.Address == "/live/song/get/tempo" {
			return []Message{NewMessage(msg.Address+"/response", 120.0)}
		}
		return nil
	})
	defer mock.Close()

	client, err := Connect(testConfig(mock.Port()))
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer client.Close()

	tempo, err := client.Tempo(context.Background())
	if err != nil {
		t.Fatalf("Tempo() error: %v", err)
	}
	if tempo != 120 {
		t.Errorf("Tempo() = %g, want 120", tempo)
	}

	stats := client.GetStats()
	if stats.MessagesSent != 1 || stats.MessagesReceived != 1 {
		t.Errorf("Stats = %d sent / %d received, want 1 / 1",
			stats.MessagesSent, stats.MessagesReceived)
	}
	if !stats.Running {
		t.Error("Stats.Running = false, want true")
	}
}

func TestQueryReplyOnRequestAddress(t *testing.T) {
	// Older bridges answer on the request address with no /response
	// suffix. Both must match.
	mock := newMockWorkstation(t, func(msg Message) []Message {
		if msg.Address == "/live/song/get/tempo" {
			return []Message{NewMessage(msg.Address, 98.5)}
		}
		return nil
	})
	defer mock.Close()

	client, err := Connect(testConfig(mock.Port()))
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer client.Close()

	tempo, err := client.Tempo(context.Background())
	if err != nil {
		t.Fatalf("Tempo() error: %v", err)
	}
	if tempo != 98.5 {
		t.Errorf("Tempo() = %g, want 98.5", tempo)
	}
}

func TestQueryTimeout(t *testing.T) {
	mock := newMockWorkstation(t, nil)
	defer mock.Close()

	cfg := testConfig(mock.Port())
	cfg.QueryTimeoutMS = 100

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer client.Close()

	_, err = client.Tempo(context.Background())
	if !errors.Is(err, ErrQueryTimeout) {
		t.Errorf("Tempo() error = %v, want ErrQueryTimeout", err)
	}
	if stats := client.GetStats(); stats.Errors == 0 {
		t.Error("Stats.Errors = 0, want at least 1 after a timeout")
	}
}

func TestTrackQueries(t *testing.T) {
	mock := newMockWorkstation(t, func(msg Message) []Message {
		switch msg.Address {
		case "/live/song/get/num_tracks":
			return []Message{NewMessage(msg.Address+"/response", 2)}
		case "/live/song/get/track_names":
			return []Message{NewMessage(msg.Address+"/response", "Vocals", "Drums")}
		case "/live/track/get/volume":
			track, _ := msg.IntArg(0)
			return []Message{NewMessage(msg.Address+"/response", track, 0.85)}
		case "/live/track/get/num_devices":
			track, _ := msg.IntArg(0)
			return []Message{NewMessage(msg.Address+"/response", track, 3)}
		case "/live/track/get/devices/name":
			track, _ := msg.IntArg(0)
			return []Message{NewMessage(msg.Address+"/response", track, "EQ Eight", "Glue Compressor", "Reverb")}
		}
		return nil
	})
	defer mock.Close()

	client, err := Connect(testConfig(mock.Port()))
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer client.Close()
	ctx := context.Background()

	count, err := client.TrackCount(ctx)
	if err != nil || count != 2 {
		t.Errorf("TrackCount() = %d, %v, want 2, nil", count, err)
	}

	names, err := client.TrackNames(ctx)
	if err != nil {
		t.Fatalf("TrackNames() error: %v", err)
	}
	if len(names) != 2 || names[0] != "Vocals" || names[1] != "Drums" {
		t.Errorf("TrackNames() = %v, want [Vocals Drums]", names)
	}

	vol, err := client.TrackVolume(ctx, 0)
	if err != nil {
		t.Fatalf("TrackVolume() error: %v", err)
	}
	if math.Abs(vol-0.85) > 1e-6 {
		t.Errorf("TrackVolume() = %g, want 0.85", vol)
	}

	devices, err := client.DeviceCount(ctx, 0)
	if err != nil || devices != 3 {
		t.Errorf("DeviceCount() = %d, %v, want 3, nil", devices, err)
	}

	// The track index echo is an int32 and must not leak into the names.
	deviceNames, err := client.DeviceNames(ctx, 0)
	if err != nil {
		t.Fatalf("DeviceNames() error: %v", err)
	}
	if len(deviceNames) != 3 || deviceNames[1] != "Glue Compressor" {
		t.Errorf("DeviceNames() = %v, want 3 names with Glue Compressor second", deviceNames)
	}
}

func TestDeviceAndParameterQueries(t *testing.T) {
	mock := newMockWorkstation(t, func(msg Message) []Message {
		track, _ := msg.IntArg(0)
		device, _ := msg.IntArg(1)
		switch msg.Address {
		case "/live/device/get/name":
			return []Message{NewMessage(msg.Address+"/response", track, device, "Glue Compressor")}
		case "/live/device/get/class_name":
			return []Message{NewMessage(msg.Address+"/response", track, device, "GlueCompressor")}
		case "/live/device/get/parameters/name":
			return []Message{NewMessage(msg.Address+"/response", track, device, "Device On", "Threshold", "Ratio")}
		case "/live/device/get/parameters/value":
			return []Message{NewMessage(msg.Address+"/response", track, device, 1.0, -20.0, 4.0)}
		case "/live/device/get/parameters/min":
			return []Message{NewMessage(msg.Address+"/response", track, device, 0.0, -60.0, 1.0)}
		case "/live/device/get/parameters/max":
			return []Message{NewMessage(msg.Address+"/response", track, device, 1.0, 0.0, 20.0)}
		case "/live/device/get/parameter/value":
			param, _ := msg.IntArg(2)
			return []Message{NewMessage(msg.Address+"/response", track, device, param, 0.43)}
		case "/live/device/get/parameter/value_string":
			param, _ := msg.IntArg(2)
			return []Message{NewMessage(msg.Address+"/response", track, device, param, "-18.0 dB")}
		}
		return nil
	})
	defer mock.Close()

	client, err := Connect(testConfig(mock.Port()))
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer client.Close()
	ctx := context.Background()

	name, err := client.DeviceName(ctx, 0, 1)
	if err != nil || name != "Glue Compressor" {
		t.Errorf("DeviceName() = %q, %v, want \"Glue Compressor\", nil", name, err)
	}

	class, err := client.DeviceClassName(ctx, 0, 1)
	if err != nil || class != "GlueCompressor" {
		t.Errorf("DeviceClassName() = %q, %v, want \"GlueCompressor\", nil", class, err)
	}

	names, err := client.ParameterNames(ctx, 0, 1)
	if err != nil {
		t.Fatalf("ParameterNames() error: %v", err)
	}
	if len(names) != 3 || names[1] != "Threshold" {
		t.Errorf("ParameterNames() = %v, want 3 names with Threshold second", names)
	}

	// The track and device echoes are ints and must be stripped, even
	// though values themselves may legitimately be whole numbers.
	values, err := client.ParameterValues(ctx, 0, 1)
	if err != nil {
		t.Fatalf("ParameterValues() error: %v", err)
	}
	if len(values) != 3 || values[0] != 1 || values[1] != -20 || values[2] != 4 {
		t.Errorf("ParameterValues() = %v, want [1 -20 4]", values)
	}

	mins, maxs, err := client.ParameterRanges(ctx, 0, 1)
	if err != nil {
		t.Fatalf("ParameterRanges() error: %v", err)
	}
	if len(mins) != 3 || mins[1] != -60 {
		t.Errorf("ParameterRanges() mins = %v, want [0 -60 1]", mins)
	}
	if len(maxs) != 3 || maxs[2] != 20 {
		t.Errorf("ParameterRanges() maxs = %v, want [1 0 20]", maxs)
	}

	value, err := client.ParameterValue(ctx, 0, 1, 5)
	if err != nil {
		t.Fatalf("ParameterValue() error: %v", err)
	}
	if math.Abs(value-0.43) > 1e-6 {
		t.Errorf("ParameterValue() = %g, want 0.43", value)
	}

	display, err := client.ParameterValueString(ctx, 0, 1, 5)
	if err != nil || display != "-18.0 dB" {
		t.Errorf("ParameterValueString() = %q, %v, want \"-18.0 dB\", nil", display, err)
	}
}

func TestParameterValueStringNumericFallback(t *testing.T) {
	// Bridges without the value_string endpoint answer on the plain
	// value address with a numeric value.
	mock := newMockWorkstation(t, func(msg Message) []Message {
		if msg.Address == "/live/device/get/parameter/value_string" {
			return []Message{NewMessage("/live/device/get/parameter/value", 0, 1, 5, 0.5)}
		}
		return nil
	})
	defer mock.Close()

	client, err := Connect(testConfig(mock.Port()))
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer client.Close()

	display, err := client.ParameterValueString(context.Background(), 0, 1, 5)
	if err != nil {
		t.Fatalf("ParameterValueString() error: %v", err)
	}
	if display != "0.5" {
		t.Errorf("ParameterValueString() = %q, want \"0.5\"", display)
	}
}

func TestSetTempoSend(t *testing.T) {
	mock := newMockWorkstation(t, nil)
	defer mock.Close()

	client, err := Connect(testConfig(mock.Port()))
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer client.Close()

	if err := client.SetTempo(context.Background(), 121.5); err != nil {
		t.Fatalf("SetTempo() error: %v", err)
	}

	msgs := waitReceived(t, mock, 1)
	if msgs[0].Address != "/live/song/set/tempo" {
		t.Errorf("Request address = %q, want /live/song/set/tempo", msgs[0].Address)
	}
	if bpm, err := msgs[0].FloatArg(0); err != nil || bpm != 121.5 {
		t.Errorf("Request bpm = %g, %v, want 121.5, nil", bpm, err)
	}
}

func TestUnsolicitedReply(t *testing.T) {
	mock := newMockWorkstation(t, func(msg Message) []Message {
		return []Message{NewMessage(msg.Address+"/response", 120.0)}
	})
	defer mock.Close()

	client, err := Connect(testConfig(mock.Port()))
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer client.Close()

	unsolicited := make(chan Message, 1)
	client.SetOnMessage(func(msg Message) {
		unsolicited <- msg
	})

	// Send without a waiter, so the reply has nowhere to go.
	if err := client.Send(context.Background(), "/live/song/get/tempo"); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	var got Message
	select {
	case got = <-unsolicited:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the unsolicited callback")
	}
	if got.Address != "/live/song/get/tempo/response" {
		t.Errorf("Callback address = %q, want /live/song/get/tempo/response", got.Address)
	}

	if _, ok := client.LastReply("/live/song/get/tempo/response"); !ok {
		t.Error("LastReply() should record the unmatched reply")
	}
	if stats := client.GetStats(); stats.RepliesUnmatched != 1 {
		t.Errorf("Stats.RepliesUnmatched = %d, want 1", stats.RepliesUnmatched)
	}
}

func TestQuerySequence(t *testing.T) {
	mock := newMockWorkstation(t, func(msg Message) []Message {
		if msg.Address != "/live/device/get/parameter/value" {
			return nil
		}
		track, _ := msg.IntArg(0)
		device, _ := msg.IntArg(1)
		param, _ := msg.IntArg(2)
		return []Message{NewMessage(msg.Address+"/response", track, device, param, float64(param)/10)}
	})
	defer mock.Close()

	client, err := Connect(testConfig(mock.Port()))
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer client.Close()
	ctx := context.Background()

	for param := 1; param <= 3; param++ {
		value, err := client.ParameterValue(ctx, 0, 0, param)
		if err != nil {
			t.Fatalf("ParameterValue(%d) error: %v", param, err)
		}
		if want := float64(param) / 10; math.Abs(value-want) > 1e-6 {
			t.Errorf("ParameterValue(%d) = %g, want %g", param, value, want)
		}
	}
}

func TestClientNotRunning(t *testing.T) {
	client := &Client{}

	if err := client.Send(context.Background(), "/live/song/set/tempo", 120.0); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Send() error = %v, want ErrNotRunning", err)
	}
	if _, err := client.Query(context.Background(), "/live/song/get/tempo"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Query() error = %v, want ErrNotRunning", err)
	}
	if _, err := client.Tempo(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Tempo() error = %v, want ErrNotRunning", err)
	}
}

func TestClientClose(t *testing.T) {
	mock := newMockWorkstation(t, nil)
	defer mock.Close()

	client, err := Connect(testConfig(mock.Port()))
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if client.IsRunning() {
		t.Error("IsRunning() = true after Close")
	}
	if err := client.Send(context.Background(), "/live/song/set/tempo", 120.0); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Send() after Close error = %v, want ErrNotRunning", err)
	}

	// Second close must not panic.
	client.Close()
}

func TestSendContextCancelled(t *testing.T) {
	mock := newMockWorkstation(t, nil)
	defer mock.Close()

	client, err := Connect(testConfig(mock.Port()))
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.Send(ctx, "/live/song/set/tempo", 120.0); !errors.Is(err, context.Canceled) {
		t.Errorf("Send() error = %v, want context.Canceled", err)
	}
	if _, err := client.Query(ctx, "/live/song/get/tempo"); !errors.Is(err, context.Canceled) {
		t.Errorf("Query() error = %v, want context.Canceled", err)
	}
}
