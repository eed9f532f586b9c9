package wind

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
	"github.com/metwx/metemu/pkg/state"
)

const testRecord = "045 10.2 12.5\n"

func newTestDevice(t *testing.T) (*Device, *bytes.Buffer, *session.Sink) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "wind.dat")
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

func TestPollEmitsWindVector(t *testing.T) {
	dev, buf, sink := newTestDevice(t)

	sendLine(dev, sink, "0P")
	if got := splitFrame(t, buf.Bytes()); got != "WV 045 010.2 012.5 M" {
		t.Errorf("payload = %q", got)
	}
}

func TestForeignAddressIsSilent(t *testing.T) {
	dev, buf, sink := newTestDevice(t)

	sendLine(dev, sink, "1P")
	if buf.Len() != 0 {
		t.Errorf("reply to foreign address: %q", buf.Bytes())
	}
}

func TestRunStopWakeSender(t *testing.T) {
	dev, _, sink := newTestDevice(t)

	if wake := sendLine(dev, sink, "0R"); !wake {
		t.Error("R did not ask for a sender wake-up")
	}
	if !dev.Continuous() {
		t.Error("device not continuous after R")
	}
	if wake := sendLine(dev, sink, "0S"); !wake {
		t.Error("S did not ask for a sender wake-up")
	}
	if dev.Continuous() {
		t.Error("device still continuous after S")
	}
}

func TestIntervalCommand(t *testing.T) {
	dev, buf, sink := newTestDevice(t)

	if wake := sendLine(dev, sink, "0I5"); !wake {
		t.Error("I did not ask for a sender wake-up")
	}
	if got := splitFrame(t, buf.Bytes()); got != "I 5" {
		t.Errorf("reply = %q", got)
	}
	if got := dev.Interval(); got != 5*time.Second {
		t.Errorf("Interval() = %v, want 5s", got)
	}

	buf.Reset()
	if wake := sendLine(dev, sink, "0I0"); wake {
		t.Error("rejected interval asked for a wake-up")
	}
	if got := splitFrame(t, buf.Bytes()); got != "ERR" {
		t.Errorf("reply = %q, want ERR", got)
	}
}

func TestUnitConversion(t *testing.T) {
	dev, buf, sink := newTestDevice(t)

	sendLine(dev, sink, "0uk") // lower case folds
	if got := splitFrame(t, buf.Bytes()); got != "U K" {
		t.Fatalf("reply = %q", got)
	}

	buf.Reset()
	sendLine(dev, sink, "0P")
	if got := splitFrame(t, buf.Bytes()); got != "WV 045 036.7 045.0 K" {
		t.Errorf("payload = %q", got)
	}
}

func TestAzimuthOffsetRotatesDirection(t *testing.T) {
	dev, buf, sink := newTestDevice(t)

	sendLine(dev, sink, "0A90")
	buf.Reset()
	sendLine(dev, sink, "0P")
	payload := splitFrame(t, buf.Bytes())
	if !strings.HasPrefix(payload, "WV 135 ") {
		t.Errorf("payload = %q, want direction 135", payload)
	}
}

func TestMalformedLineGetsError(t *testing.T) {
	dev, buf, sink := newTestDevice(t)

	sendLine(dev, sink, "X")
	if got := splitFrame(t, buf.Bytes()); got != "ERR" {
		t.Errorf("reply = %q, want ERR", got)
	}
}
