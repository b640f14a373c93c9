package timers

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type RegistrySuite struct {
	suite.Suite

	clock    *clockwork.FakeClock
	registry *MemoryRegistry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (suite *RegistrySuite) SetupTest() {
	suite.clock = clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	suite.registry = NewMemoryRegistry(WithClock(suite.clock))
}

func (suite *RegistrySuite) add(id string, section Section) {
	added, err := suite.registry.Add(Timer{ID: id, DisplayNumber: "000123", Section: section})
	suite.Require().NoError(err)
	suite.Require().True(added)
}

func (suite *RegistrySuite) remaining(id string) int {
	remaining, ok := suite.registry.ReadRemaining(id)
	suite.Require().True(ok)
	return remaining
}

func (suite *RegistrySuite) TestEmptySnapshot() {
	suite.Empty(suite.registry.Snapshot())
	suite.Equal(0, suite.registry.Len())
}

func (suite *RegistrySuite) TestAddInitializesSectionDuration() {
	suite.add("1", SectionOne)
	suite.add("2", SectionTwo)
	suite.add("3", SectionThree)

	suite.Equal(1800, suite.remaining("1"))
	suite.Equal(900, suite.remaining("2"))
	suite.Equal(600, suite.remaining("3"))
}

func (suite *RegistrySuite) TestAddIndependentOfOtherTimers() {
	suite.add("1", SectionTwo)
	suite.registry.RecordTick("1", 12)
	suite.clock.Advance(5 * time.Minute)

	suite.add("2", SectionTwo)
	suite.Equal(900, suite.remaining("2"))
}

func (suite *RegistrySuite) TestAddRejectsInvalidSection() {
	added, err := suite.registry.Add(Timer{ID: "x", Section: 4})
	suite.False(added)
	suite.True(errors.Is(err, ErrInvalidSection))
	suite.Equal(0, suite.registry.Len())
}

func (suite *RegistrySuite) TestSnapshotKeepsCreationOrder() {
	suite.add("b", SectionOne)
	suite.add("a", SectionTwo)
	suite.add("c", SectionThree)
	suite.registry.Remove("a")
	suite.add("a", SectionThree)

	ids := []string{}
	for _, timer := range suite.registry.Snapshot() {
		ids = append(ids, timer.ID)
	}
	suite.Equal([]string{"b", "c", "a"}, ids)
}

func (suite *RegistrySuite) TestReadRemainingReconcilesElapsedTime() {
	suite.add("1", SectionThree)
	suite.clock.Advance(65 * time.Second)

	suite.Equal(535, suite.remaining("1"))
	// reads do not consume time
	suite.Equal(535, suite.remaining("1"))
}

func (suite *RegistrySuite) TestReadRemainingIgnoresPartialSeconds() {
	suite.add("1", SectionThree)
	suite.clock.Advance(1999 * time.Millisecond)

	suite.Equal(599, suite.remaining("1"))
}

func (suite *RegistrySuite) TestReadRemainingClampsAtZero() {
	suite.add("1", SectionThree)
	suite.clock.Advance(24 * time.Hour)
	suite.Equal(0, suite.remaining("1"))

	suite.registry.RecordTick("1", -30)
	suite.Equal(0, suite.remaining("1"))
}

func (suite *RegistrySuite) TestReadRemainingExtremeTickDoesNotWrap() {
	suite.add("1", SectionOne)
	suite.True(suite.registry.RecordTick("1", math.MinInt))
	suite.clock.Advance(time.Second)
	suite.Equal(0, suite.remaining("1"))
}

func (suite *RegistrySuite) TestGet() {
	suite.add("1", SectionTwo)

	timer, ok := suite.registry.Get("1")
	suite.Require().True(ok)
	suite.Equal(SectionTwo, timer.Section)

	suite.registry.Remove("1")
	_, ok = suite.registry.Get("1")
	suite.False(ok)
}

func (suite *RegistrySuite) TestReadRemainingUnknown() {
	_, ok := suite.registry.ReadRemaining("missing")
	suite.False(ok)
}

func (suite *RegistrySuite) TestMoveResetsCountdown() {
	suite.add("1", SectionOne)
	suite.clock.Advance(10 * time.Minute)
	suite.registry.RecordTick("1", 42)

	reset, err := suite.registry.Move("1", SectionThree)
	suite.Require().NoError(err)
	suite.Equal(600, reset)
	suite.Equal(600, suite.remaining("1"))
	suite.Equal(SectionThree, suite.registry.Snapshot()[0].Section)

	// same section still restarts
	suite.clock.Advance(time.Minute)
	reset, err = suite.registry.Move("1", SectionThree)
	suite.Require().NoError(err)
	suite.Equal(600, reset)
	suite.Equal(600, suite.remaining("1"))
}

func (suite *RegistrySuite) TestMoveUnknown() {
	_, err := suite.registry.Move("missing", SectionTwo)
	suite.True(errors.Is(err, ErrNotFound))
}

func (suite *RegistrySuite) TestMoveInvalidSection() {
	suite.add("1", SectionOne)
	_, err := suite.registry.Move("1", 0)
	suite.True(errors.Is(err, ErrInvalidSection))
	suite.Equal(SectionOne, suite.registry.Snapshot()[0].Section)
}

func (suite *RegistrySuite) TestRecordTickLastWriterWins() {
	suite.add("1", SectionOne)

	suite.True(suite.registry.RecordTick("1", 100))
	suite.clock.Advance(3 * time.Second)
	suite.True(suite.registry.RecordTick("1", 95))
	suite.clock.Advance(2 * time.Second)

	// derived from the second report, not 100-5
	suite.Equal(93, suite.remaining("1"))
}

func (suite *RegistrySuite) TestRecordTickUnknownIsNoop() {
	suite.False(suite.registry.RecordTick("missing", 10))
	_, ok := suite.registry.ReadRemaining("missing")
	suite.False(ok)
	suite.Equal(0, suite.registry.Len())
}

func (suite *RegistrySuite) TestRemoveIdempotent() {
	suite.add("1", SectionTwo)

	suite.True(suite.registry.Remove("1"))
	suite.False(suite.registry.Remove("1"))

	_, ok := suite.registry.ReadRemaining("1")
	suite.False(ok)
	suite.Empty(suite.registry.Snapshot())
}

func TestDuplicatePolicies(t *testing.T) {
	clock := clockwork.NewFakeClock()
	original := Timer{ID: "1", DisplayNumber: "000111", Section: SectionOne}
	replacement := Timer{ID: "1", DisplayNumber: "000222", Section: SectionThree}

	t.Run("reject", func(t *testing.T) {
		r := NewMemoryRegistry(WithClock(clock))
		_, err := r.Add(original)
		require.NoError(t, err)

		added, err := r.Add(replacement)
		assert.False(t, added)
		assert.True(t, errors.Is(err, ErrDuplicateID))
		assert.Equal(t, []Timer{original}, r.Snapshot())
	})

	t.Run("ignore", func(t *testing.T) {
		r := NewMemoryRegistry(WithClock(clock), WithDuplicatePolicy(DuplicateIgnore))
		_, err := r.Add(original)
		require.NoError(t, err)
		r.RecordTick("1", 77)

		added, err := r.Add(replacement)
		assert.NoError(t, err)
		assert.False(t, added)
		assert.Equal(t, []Timer{original}, r.Snapshot())
		remaining, _ := r.ReadRemaining("1")
		assert.Equal(t, 77, remaining)
	})

	t.Run("overwrite", func(t *testing.T) {
		r := NewMemoryRegistry(WithClock(clock), WithDuplicatePolicy(DuplicateOverwrite))
		_, err := r.Add(original)
		require.NoError(t, err)
		_, err = r.Add(Timer{ID: "2", Section: SectionTwo})
		require.NoError(t, err)
		r.RecordTick("1", 77)

		added, err := r.Add(replacement)
		assert.NoError(t, err)
		assert.True(t, added)
		assert.Equal(t, replacement, r.Snapshot()[0])
		remaining, _ := r.ReadRemaining("1")
		assert.Equal(t, 600, remaining)
	})
}

func TestParseDuplicatePolicy(t *testing.T) {
	p, err := ParseDuplicatePolicy("")
	require.NoError(t, err)
	assert.Equal(t, DuplicateReject, p)

	p, err = ParseDuplicatePolicy("overwrite")
	require.NoError(t, err)
	assert.Equal(t, DuplicateOverwrite, p)

	_, err = ParseDuplicatePolicy("merge")
	assert.Error(t, err)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewMemoryRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n))
			_, _ = r.Add(Timer{ID: id, Section: SectionTwo})
			for j := 0; j < 100; j++ {
				r.RecordTick(id, 900-j)
				r.ReadRemaining(id)
				r.Snapshot()
				_, _ = r.Move(id, Section(j%3+1))
			}
			r.Remove(id)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, r.Len())
}
