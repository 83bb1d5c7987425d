package avail

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pollcore/internal/model"
)

func at(sec int64) time.Time { return time.Unix(sec, 0) }

// TestTimeoutDeactivationBoundary implements scenario S2.
func TestTimeoutDeactivationBoundary(t *testing.T) {
	tr := NewTracker(Tunables{
		UnavailableDelay:  300 * time.Second,
		UnreachableDelay:  15 * time.Second,
		UnreachablePeriod: 60 * time.Second,
	})

	iface := model.Interface{InterfaceID: 7, Available: model.TriUnknown}
	item := model.Item{ItemID: 7, Host: "h", KeyOrig: "agent.ping"}

	iface = tr.Observe(at(100), iface, item, model.TIMEOUTERROR, "timed out")
	require.True(t, iface.ErrorsFromSet())
	assert.Equal(t, at(100), iface.ErrorsFrom)
	assert.Equal(t, model.TriUnknown, iface.Available)
	assert.Equal(t, at(115), iface.DisableUntil)

	iface = tr.Observe(at(155), iface, item, model.TIMEOUTERROR, "timed out")
	assert.Equal(t, at(100), iface.ErrorsFrom)
	assert.Equal(t, model.TriUnknown, iface.Available)
	assert.Equal(t, at(170), iface.DisableUntil)

	iface = tr.Observe(at(165), iface, item, model.TIMEOUTERROR, "timed out")
	assert.Equal(t, model.TriFalse, iface.Available)
	assert.Equal(t, at(465), iface.DisableUntil)
}

// TestActivationClearsState verifies invariant 7's recovery clause: any
// success-class errcode restores available=true and clears errors_from.
func TestActivationClearsState(t *testing.T) {
	tr := NewTracker(Tunables{UnavailableDelay: 300 * time.Second, UnreachableDelay: 15 * time.Second, UnreachablePeriod: 60 * time.Second})
	iface := model.Interface{InterfaceID: 1, Available: model.TriFalse, ErrorsFrom: at(10), DisableUntil: at(400)}
	item := model.Item{ItemID: 1}

	iface = tr.Observe(at(500), iface, item, model.SUCCEED, "")
	assert.Equal(t, model.TriTrue, iface.Available)
	assert.False(t, iface.ErrorsFromSet())
	assert.True(t, iface.DisableUntil.IsZero())
}

// TestConfigAndSigErrorsAreNoOps covers spec.md §4.4's CONFIG_ERROR/
// SIG_ERROR row and Open Question 1 (SIG_ERROR does not clear errors_from).
func TestConfigAndSigErrorsAreNoOps(t *testing.T) {
	tr := NewTracker(Tunables{UnavailableDelay: time.Minute, UnreachableDelay: time.Second, UnreachablePeriod: time.Minute})
	iface := model.Interface{InterfaceID: 2, Available: model.TriUnknown, ErrorsFrom: at(10)}
	item := model.Item{ItemID: 2}

	out := tr.Observe(at(20), iface, item, model.CONFIGERROR, "bad regex")
	assert.Equal(t, iface, out)

	out = tr.Observe(at(30), iface, item, model.SIGERROR, "")
	assert.Equal(t, iface, out)
}

// TestCleanSuccessProducesNoStatusEntry implements the "interfaces map
// empty at cycle end when all items succeeded cleanly" property
// (spec.md §9 Open Question 3, scenario S1).
func TestCleanSuccessProducesNoStatusEntry(t *testing.T) {
	tr := NewTracker(Tunables{UnavailableDelay: time.Minute, UnreachableDelay: time.Second, UnreachablePeriod: time.Minute})
	iface := model.Interface{InterfaceID: 42, Available: model.TriTrue}
	item := model.Item{ItemID: 42}

	tr.Observe(at(1), iface, item, model.SUCCEED, "")
	assert.Equal(t, 0, tr.Len())
}

// TestReactivationProducesStatusEntry covers the flip side of Open
// Question 3: a success that reactivates a previously-failing interface
// does create an entry.
func TestReactivationProducesStatusEntry(t *testing.T) {
	tr := NewTracker(Tunables{UnavailableDelay: time.Minute, UnreachableDelay: time.Second, UnreachablePeriod: time.Minute})
	iface := model.Interface{InterfaceID: 42, Available: model.TriFalse, ErrorsFrom: at(1)}
	item := model.Item{ItemID: 42}

	tr.Observe(at(10), iface, item, model.SUCCEED, "")
	assert.Equal(t, 1, tr.Len())
}

// TestTieBreakLastUpsertWins covers spec.md §4.4's tie-break rule and
// testable property 3 (at most one entry per interfaceid per cycle).
func TestTieBreakLastUpsertWins(t *testing.T) {
	tr := NewTracker(Tunables{UnavailableDelay: time.Minute, UnreachableDelay: time.Second, UnreachablePeriod: time.Minute})
	iface := model.Interface{InterfaceID: 5, Available: model.TriTrue}

	tr.Observe(at(1), iface, model.Item{ItemID: 1, KeyOrig: "first"}, model.TIMEOUTERROR, "e1")
	tr.Observe(at(2), iface, model.Item{ItemID: 2, KeyOrig: "second"}, model.TIMEOUTERROR, "e2")

	require.Equal(t, 1, tr.Len())
	flushed := tr.Flush()
	require.Len(t, flushed, 1)
	assert.Equal(t, uint64(2), flushed[0].ItemID)
	assert.Equal(t, "second", flushed[0].KeyOrig)
	assert.Equal(t, 0, tr.Len(), "Flush must clear the transient map")
}
