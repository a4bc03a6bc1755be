// Package testutil provides shared test infrastructure for the view
// packages: simulated rank groups, log capture and float assertions.
package testutil

import (
	"bytes"
	"context"
	"math"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/distview/distview/view/comm"
)

// rankTimeout bounds a simulated session so a collective mismatch fails the
// test instead of hanging it.
const rankTimeout = 30 * time.Second

// RunRanks runs fn once per rank of an in-process group for topo and returns
// the per-rank results indexed by rank. Any rank error fails the test.
func RunRanks[T any](t *testing.T, topo comm.Topology, fn func(c comm.Controller) (T, error)) []T {
	t.Helper()
	g := comm.NewGroup(topo)
	return RunGroup(t, g, fn)
}

// RunGroup is RunRanks for a caller-owned group, so a test can inspect the
// group's traffic counters afterwards.
func RunGroup[T any](t *testing.T, g *comm.Group, fn func(c comm.Controller) (T, error)) []T {
	t.Helper()
	results := make([]T, g.Size())
	done := make(chan error, 1)
	go func() {
		done <- g.Run(context.Background(), func(_ context.Context, c comm.Controller) error {
			r, err := fn(c)
			if err != nil {
				return err
			}
			results[c.LocalProcessID()] = r
			return nil
		})
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("simulated session failed: %v", err)
		}
	case <-time.After(rankTimeout):
		t.Fatalf("simulated session did not finish within %v: a rank skipped a collective", rankTimeout)
	}
	return results
}

// CaptureLogOutput runs fn with logrus writing to a buffer at Debug level and
// returns what was logged.
func CaptureLogOutput(fn func()) string {
	var buf bytes.Buffer
	origOutput := logrus.StandardLogger().Out
	origLevel := logrus.GetLevel()
	logrus.SetOutput(&buf)
	logrus.SetLevel(logrus.DebugLevel)
	defer func() {
		if origOutput != nil {
			logrus.SetOutput(origOutput)
		} else {
			logrus.SetOutput(os.Stderr)
		}
		logrus.SetLevel(origLevel)
	}()
	fn()
	return buf.String()
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
