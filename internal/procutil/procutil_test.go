package procutil

import (
	"os"
	"testing"
)

func TestAlive(t *testing.T) {
	t.Run("own process is alive", func(t *testing.T) {
		if !Alive(os.Getpid()) {
			t.Error("expected own pid to be alive")
		}
	})

	t.Run("nonexistent pid is dead", func(t *testing.T) {
		// PID max on Linux defaults to 4194304; 999999 within range but
		// extremely unlikely to be allocated during a test run.
		if Alive(999999) {
			t.Error("expected pid 999999 to be dead")
		}
	})

	t.Run("invalid pids are dead", func(t *testing.T) {
		if Alive(0) {
			t.Error("expected pid 0 to report dead")
		}
		if Alive(-1) {
			t.Error("expected pid -1 to report dead")
		}
	})
}
