package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func TestDecodeRequest(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"signalId":"1","command":"status"}`))
	if err != nil {
		t.Fatal(err)
	}
	if req.SignalID != "1" || req.Command != CommandStatus {
		t.Fatalf("request = %+v", req)
	}
	for _, line := range []string{`{`, `{"signalId":"1"}`, `[]`} {
		if _, err := DecodeRequest([]byte(line)); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: err = %v, want ErrMalformed", line, err)
		}
	}
}

func TestDecodeData(t *testing.T) {
	want := Problem{
		RunID:                 "r1",
		ClassFileName:         "Main",
		InputDataFilePathList: []string{"/data/1.in", "/data/2.in"},
		TimeLimit:             1000,
		MemoryLimit:           64 << 20,
	}
	doc, _ := json.Marshal(want)
	str, _ := json.Marshal(string(doc))

	for name, data := range map[string]json.RawMessage{"object": doc, "string": str} {
		t.Run(name, func(t *testing.T) {
			var p Problem
			if err := DecodeData(data, &p); err != nil {
				t.Fatal(err)
			}
			if p.RunID != want.RunID || p.ClassFileName != want.ClassFileName || len(p.InputDataFilePathList) != 2 ||
				p.TimeLimit != want.TimeLimit || p.MemoryLimit != want.MemoryLimit {
				t.Fatalf("problem = %+v", p)
			}
		})
	}

	var p Problem
	for _, data := range []string{``, `null`, `"{"`, `42`} {
		if err := DecodeData(json.RawMessage(data), &p); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%q: err = %v, want ErrMalformed", data, err)
		}
	}
}

func TestNewResponse(t *testing.T) {
	r, err := NewResponse("7", ResponseOK, CommandStatus, Status{PID: "42", Busy: true})
	if err != nil {
		t.Fatal(err)
	}
	var s Status
	if err := json.Unmarshal([]byte(r.Data), &s); err != nil {
		t.Fatal(err)
	}
	if s.PID != "42" || !s.Busy {
		t.Fatalf("status = %+v", s)
	}

	r, _ = NewResponse("", ResponseIdle, "", nil)
	b, _ := json.Marshal(r)
	if string(b) != `{"responseCommand":"idle"}` {
		t.Fatalf("idle = %s", b)
	}
}

func TestLineConn(t *testing.T) {
	server, client := net.Pipe()
	c := NewLineConn(server)
	defer c.Close()

	go func() {
		io.WriteString(client, "{\"signalId\":\"1\",\"command\":\"isBusy\"}\n\nnot json\n")
	}()
	req, err := c.Read()
	if err != nil {
		t.Fatal(err)
	}
	if req.Command != CommandIsBusy {
		t.Fatalf("command = %q", req.Command)
	}
	if _, err := c.Read(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}

	done := make(chan string)
	go func() {
		line, _ := bufio.NewReader(client).ReadString('\n')
		done <- line
	}()
	if err := c.Emit(&Response{SignalID: "1", ResponseCommand: ResponseNo, RequestCommand: CommandIsBusy}); err != nil {
		t.Fatal(err)
	}
	line := <-done
	if !strings.HasSuffix(line, "\n") || !strings.Contains(line, `"responseCommand":"no"`) {
		t.Fatalf("line = %q", line)
	}

	client.Close()
	if _, err := c.Read(); !IsClosed(err) {
		t.Fatalf("err = %v, want closed", err)
	}
}

func TestAcceptOne(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := lis.Addr().String()

	go func() {
		c, err := net.Dial("tcp", addr)
		if err == nil {
			defer c.Close()
			io.WriteString(c, "{\"command\":\"status\"}\n")
			time.Sleep(100 * time.Millisecond)
		}
	}()
	c, err := acceptOne(context.Background(), lis, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	req, err := c.Read()
	if err != nil || req.Command != CommandStatus {
		t.Fatalf("read = %+v, %v", req, err)
	}
	if _, err := net.DialTimeout("tcp", addr, time.Second); err == nil {
		t.Fatal("listener still accepting after first connection")
	}
}

func TestAcceptOneCancel(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := acceptOne(ctx, lis, zap.NewNop()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestAcceptWebSocket(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	url := "ws://" + lis.Addr().String() + "/ws"

	type result struct {
		c   Conn
		err error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := acceptWebSocket(context.Background(), lis, zap.NewNop())
		ch <- result{c, err}
	}()

	var client *websocket.Conn
	for i := 0; ; i++ {
		client, _, err = websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			break
		}
		if i > 50 {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	defer client.Close()

	res := <-ch
	if res.err != nil {
		t.Fatal(res.err)
	}
	c := res.c
	defer c.Close()

	if err := client.WriteMessage(websocket.TextMessage, []byte(`{"signalId":"9","command":"close"}`)); err != nil {
		t.Fatal(err)
	}
	req, err := c.Read()
	if err != nil || req.SignalID != "9" || req.Command != CommandClose {
		t.Fatalf("read = %+v, %v", req, err)
	}

	if err := c.Emit(&Response{SignalID: "9", ResponseCommand: ResponseOK, RequestCommand: CommandClose}); err != nil {
		t.Fatal(err)
	}
	var resp Response
	if err := client.ReadJSON(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.ResponseCommand != ResponseOK || resp.SignalID != "9" {
		t.Fatalf("response = %+v", resp)
	}

	if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatal("second control connection accepted")
	} else if resp != nil && resp.StatusCode == http.StatusSwitchingProtocols {
		t.Fatal("second upgrade succeeded")
	}
}
