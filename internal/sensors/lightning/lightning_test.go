package lightning

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/metwx/metemu/internal/replay"
	"github.com/metwx/metemu/internal/session"
	"github.com/metwx/metemu/pkg/checksum"
	"github.com/metwx/metemu/pkg/config"
	"github.com/metwx/metemu/pkg/state"
)

// One flash two seconds before the recorded system time; the remaining
// tuple slots carry zero fillers.
const testRecord = "DATA:,8,010125,120000,1," +
	"010125,115958,45,12.3,0," +
	"0,0,0,0,0," +
	"0,0,0,0,0," +
	"0,0,0,0,0\n"

func newTestDevice(t *testing.T) (*Device, *bytes.Buffer, *session.Sink) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "lightning.dat")
	if err := os.WriteFile(path, []byte(testRecord), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := replay.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { src.Close() })

	dev, err := NewDevice(src, state.Discard{})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	return dev, &buf, session.NewSink(&buf)
}

func sendLine(dev *Device, sink *session.Sink, line string) bool {
	now := time.Now()
	wake := false
	for _, b := range []byte(line + "\r") {
		if dev.Feed(b, now, sink) {
			wake = true
		}
	}
	return wake
}

// splitFrame unwraps `STX payload ETX xx CR LF` and verifies the XOR
// checksum.
func splitFrame(t *testing.T, raw []byte) string {
	t.Helper()

	if len(raw) < 7 || raw[0] != 0x02 || !bytes.HasSuffix(raw, []byte("\r\n")) {
		t.Fatalf("malformed frame %q", raw)
	}
	etx := bytes.IndexByte(raw, 0x03)
	if etx < 0 || etx != len(raw)-5 {
		t.Fatalf("ETX misplaced in %q", raw)
	}
	payload := string(raw[1:etx])
	want := fmt.Sprintf("%02X", checksum.Xor8([]byte(payload)))
	if got := string(raw[etx+1 : etx+3]); got != want {
		t.Fatalf("frame checksum = %s, want %s (payload %q)", got, want, payload)
	}
	return payload
}

func TestEmitDataRestampsRecord(t *testing.T) {
	dev, buf, sink := newTestDevice(t)

	now := time.Date(2026, 1, 2, 14, 30, 45, 0, time.Local)
	dev.EmitData(now, sink)

	payload := splitFrame(t, buf.Bytes())
	tokens := strings.Split(payload, ",")
	if len(tokens) != 25 {
		t.Fatalf("payload has %d tokens: %q", len(tokens), payload)
	}
	if tokens[2] != "020126" || tokens[3] != "143045" {
		t.Errorf("system stamp = %s,%s, want 020126,143045", tokens[2], tokens[3])
	}
	// The flash keeps its two-second offset from the system time.
	if tokens[5] != "020126" || tokens[6] != "143043" {
		t.Errorf("flash stamp = %s,%s, want 020126,143043", tokens[5], tokens[6])
	}
	// Zero fillers in the unused tuple slots stay untouched.
	if tokens[10] != "0" || tokens[11] != "0" {
		t.Errorf("filler tokens rewritten: %s,%s", tokens[10], tokens[11])
	}
	if dev.sensor.Records != 1 {
		t.Errorf("Records = %d, want 1", dev.sensor.Records)
	}
}

func TestDataQueryEmitsOneFrame(t *testing.T) {
	dev, buf, sink := newTestDevice(t)

	if wake := sendLine(dev, sink, "DATA?"); wake {
		t.Error("DATA? asked for a sender wake-up")
	}
	payload := splitFrame(t, buf.Bytes())
	if !strings.HasPrefix(payload, "DATA:,8,") {
		t.Errorf("payload = %q", payload)
	}
}

func TestRunStopWakeSender(t *testing.T) {
	dev, _, sink := newTestDevice(t)

	if wake := sendLine(dev, sink, "RUN"); !wake {
		t.Error("RUN did not ask for a sender wake-up")
	}
	if !dev.Continuous() {
		t.Error("device not continuous after RUN")
	}
	if wake := sendLine(dev, sink, "STOP"); !wake {
		t.Error("STOP did not ask for a sender wake-up")
	}
	if dev.Continuous() {
		t.Error("device still continuous after STOP")
	}
}

func TestIntervalCommand(t *testing.T) {
	dev, buf, sink := newTestDevice(t)

	if wake := sendLine(dev, sink, "INTV 30"); !wake {
		t.Error("INTV did not ask for a sender wake-up")
	}
	if got := splitFrame(t, buf.Bytes()); got != "INTV 30" {
		t.Errorf("reply = %q", got)
	}
	if got := dev.Interval(); got != 30*time.Second {
		t.Errorf("Interval() = %v, want 30s", got)
	}

	buf.Reset()
	sendLine(dev, sink, "INTV 0")
	if got := splitFrame(t, buf.Bytes()); got != "ERR" {
		t.Errorf("reply = %q, want ERR", got)
	}
}

func TestStatusQuery(t *testing.T) {
	dev, buf, sink := newTestDevice(t)

	sendLine(dev, sink, "RUN")
	sendLine(dev, sink, "STAT?")
	if got := splitFrame(t, buf.Bytes()); got != "STAT RUN 60 0" {
		t.Errorf("reply = %q", got)
	}
}

func TestUnknownCommandGetsError(t *testing.T) {
	dev, buf, sink := newTestDevice(t)

	sendLine(dev, sink, "FROB")
	if got := splitFrame(t, buf.Bytes()); got != "ERR" {
		t.Errorf("reply = %q, want ERR", got)
	}
}

func TestConfigureOverlaysFleetEntry(t *testing.T) {
	dev, _, _ := newTestDevice(t)

	dev.Configure(config.DeviceData{IntervalSecs: 120, StartMode: "RUN"})
	if dev.sensor.IntervalSecs != 120 || !dev.sensor.Continuous {
		t.Errorf("configured record = interval %d continuous %v",
			dev.sensor.IntervalSecs, dev.sensor.Continuous)
	}

	// The zero-valued entry of a positional invocation changes nothing.
	dev.Configure(config.DeviceData{})
	if dev.sensor.IntervalSecs != 120 || !dev.sensor.Continuous {
		t.Errorf("empty entry mutated record: interval %d continuous %v",
			dev.sensor.IntervalSecs, dev.sensor.Continuous)
	}
}
