package discord

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/uuid"
)

// countingConn records every Write so framing can be checked per call.
type countingConn struct {
	net.Conn
	writes [][]byte
}

func (c *countingConn) Write(b []byte) (int, error) {
	c.writes = append(c.writes, append([]byte(nil), b...))
	return len(b), nil
}

// discordPeer plays the Discord side of a pipe: it reads one frame, hands
// the decoded payload to the test and answers with reply.
func discordPeer(t *testing.T, conn net.Conn, reply string) <-chan map[string]any {
	t.Helper()
	got := make(chan map[string]any, 1)
	go func() {
		peer := &ipcClient{conn: conn}
		_, data, err := peer.readFrame()
		if err != nil {
			t.Errorf("peer read: %v", err)
			close(got)
			return
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Errorf("peer decode %q: %v", data, err)
		}
		got <- msg
		if err := peer.writeFrame(opFrame, []byte(reply)); err != nil {
			t.Errorf("peer write: %v", err)
		}
	}()
	return got
}

func TestWriteFrame_SingleWrite(t *testing.T) {
	conn := &countingConn{}
	c := &ipcClient{conn: conn}

	payload := []byte(`{"cmd":"SET_ACTIVITY"}`)
	if err := c.writeFrame(opFrame, payload); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}

	if len(conn.writes) != 1 {
		t.Fatalf("frame written in %d calls, want 1", len(conn.writes))
	}
	frame := conn.writes[0]
	if op := binary.LittleEndian.Uint32(frame[0:4]); op != opFrame {
		t.Errorf("opcode = %d, want %d", op, opFrame)
	}
	if n := binary.LittleEndian.Uint32(frame[4:8]); int(n) != len(payload) {
		t.Errorf("length = %d, want %d", n, len(payload))
	}
	if string(frame[8:]) != string(payload) {
		t.Errorf("payload = %q, want %q", frame[8:], payload)
	}
}

func TestReadFrame_ExactLength(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	// Bigger than any fixed read buffer, and sent in pieces.
	large := strings.Repeat("x", 4096)
	go func() {
		header := make([]byte, 8)
		binary.LittleEndian.PutUint32(header[0:4], opFrame)
		binary.LittleEndian.PutUint32(header[4:8], uint32(len(large)))
		_, _ = client.Write(header)
		_, _ = client.Write([]byte(large[:100]))
		_, _ = client.Write([]byte(large[100:]))
	}()

	c := &ipcClient{conn: server}
	op, payload, err := c.readFrame()
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if op != opFrame || string(payload) != large {
		t.Errorf("readFrame = %d, %d bytes", op, len(payload))
	}
}

func TestReadFrame_Truncated(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	go func() {
		header := make([]byte, 8)
		binary.LittleEndian.PutUint32(header[4:8], 10)
		_, _ = client.Write(header)
		_, _ = client.Write([]byte("abc"))
		client.Close()
	}()

	c := &ipcClient{conn: server}
	if _, _, err := c.readFrame(); err == nil {
		t.Error("expected an error for a short payload")
	}
}

func TestSetActivity_Payload(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	got := discordPeer(t, server, `{"cmd":"SET_ACTIVITY","evt":null,"data":{}}`)
	c := &ipcClient{conn: client}

	start := int64(1700000000)
	err := c.SetActivity(&Activity{
		Type:       2,
		Details:    "Artist",
		State:      "Song",
		Timestamps: &Timestamps{Start: &start},
		Buttons:    []Button{{Label: "osu! Beatmap", URL: "https://osu.ppy.sh/beatmapsets/1"}},
	})
	if err != nil {
		t.Fatalf("SetActivity: %v", err)
	}

	msg := <-got
	if msg["cmd"] != "SET_ACTIVITY" {
		t.Errorf("cmd = %v", msg["cmd"])
	}
	if nonce, _ := msg["nonce"].(string); !isUUID(nonce) {
		t.Errorf("nonce %q is not a uuid", nonce)
	}

	args, _ := msg["args"].(map[string]any)
	if pid, _ := args["pid"].(float64); int(pid) != os.Getpid() {
		t.Errorf("pid = %v, want %d", args["pid"], os.Getpid())
	}
	activity, _ := args["activity"].(map[string]any)
	if activity["details"] != "Artist" || activity["state"] != "Song" {
		t.Errorf("activity = %v", activity)
	}
	buttons, _ := activity["buttons"].([]any)
	if len(buttons) != 1 {
		t.Fatalf("buttons = %v, want one", activity["buttons"])
	}
	button, _ := buttons[0].(map[string]any)
	if button["label"] != "osu! Beatmap" || button["url"] != "https://osu.ppy.sh/beatmapsets/1" {
		t.Errorf("button = %v", button)
	}
}

func TestSetActivity_NilClears(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	got := discordPeer(t, server, `{"cmd":"SET_ACTIVITY","data":{}}`)
	c := &ipcClient{conn: client}

	if err := c.SetActivity(nil); err != nil {
		t.Fatalf("SetActivity(nil): %v", err)
	}

	args, _ := (<-got)["args"].(map[string]any)
	if _, ok := args["activity"]; ok {
		t.Errorf("clearing should omit activity, got args %v", args)
	}
	if _, ok := args["pid"]; !ok {
		t.Error("pid missing from args")
	}
}

func TestSetActivity_NoncesDiffer(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		client, server := net.Pipe()
		got := discordPeer(t, server, `{"data":{}}`)
		if err := (&ipcClient{conn: client}).SetActivity(nil); err != nil {
			t.Fatalf("SetActivity: %v", err)
		}
		nonce, _ := (<-got)["nonce"].(string)
		if seen[nonce] {
			t.Errorf("nonce %q reused", nonce)
		}
		seen[nonce] = true
		client.Close()
		server.Close()
	}
}

func TestSetActivity_ErrorEvent(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	discordPeer(t, server, `{"evt":"ERROR","data":{"code":4000,"message":"child \"activity\" fails"}}`)
	c := &ipcClient{conn: client}

	err := c.SetActivity(&Activity{State: "Song"})
	if err == nil || !strings.Contains(err.Error(), "4000") {
		t.Errorf("expected discord error 4000, got %v", err)
	}
}

func TestButtonsOmittedWhenEmpty(t *testing.T) {
	data, err := json.Marshal(&Activity{State: "Song"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "buttons") {
		t.Errorf("empty buttons should be omitted: %s", data)
	}
}

func TestIPCConnect_Handshake(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Discord uses named pipes on Windows")
	}

	dir, err := os.MkdirTemp("", "ipc")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	t.Setenv("XDG_RUNTIME_DIR", dir)

	ln, err := net.Listen("unix", filepath.Join(dir, "discord-ipc-0"))
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	handshake := make(chan map[string]any, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		peer := &ipcClient{conn: conn}
		op, data, err := peer.readFrame()
		if err != nil || op != opHandshake {
			t.Errorf("handshake frame = %d, %v", op, err)
			return
		}
		var msg map[string]any
		_ = json.Unmarshal(data, &msg)
		handshake <- msg
		_ = peer.writeFrame(opFrame, []byte(`{"cmd":"DISPATCH","evt":"READY"}`))
		_, _ = io.Copy(io.Discard, conn)
	}()

	c, err := ipcConnect("927041178103332965")
	if err != nil {
		t.Fatalf("ipcConnect: %v", err)
	}
	defer c.Close()

	msg := <-handshake
	if msg["client_id"] != "927041178103332965" {
		t.Errorf("client_id = %v", msg["client_id"])
	}
	if v, _ := msg["v"].(float64); v != 1 {
		t.Errorf("v = %v, want 1", msg["v"])
	}
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
