package worldsim

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestInitLogger(t *testing.T) {
	t.Cleanup(func() { Log = zap.NewNop().Sugar() })
	path := filepath.Join(t.TempDir(), "sim.log")

	if err := InitLogger(path, "loud", false); err == nil {
		t.Fatal("unknown level accepted")
	}
	if err := InitLogger(path, "warn", true); err != nil {
		t.Fatal(err)
	}
	Log.Infof("hidden %d", 1)
	Log.Warnf("player %s reaped", "p1")
	SyncLogger()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if strings.Contains(out, "hidden") {
		t.Fatal("info line written at warn level")
	}
	if !strings.Contains(out, `"msg":"player p1 reaped"`) || !strings.Contains(out, `"logger":"worldsim"`) {
		t.Fatalf("log = %s", out)
	}
}
