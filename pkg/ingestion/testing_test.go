package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return ctx.Err()
}

type transientErr struct{}

func (transientErr) Error() string   { return "503 service unavailable" }
func (transientErr) Transient() bool { return true }

type permanentErr struct{}

func (permanentErr) Error() string   { return "400 bad request" }
func (permanentErr) Transient() bool { return false }

// scriptedSource replays queued responses per round, then repeats the last one.
type scriptedSource struct {
	mu        sync.Mutex
	responses map[int][]response
	calls     map[int]int
}

type response struct {
	body string
	err  error
}

func newScriptedSource() *scriptedSource {
	return &scriptedSource{responses: map[int][]response{}, calls: map[int]int{}}
}

func (s *scriptedSource) on(round int, rs ...response) *scriptedSource {
	s.responses[round] = append(s.responses[round], rs...)
	return s
}

func (s *scriptedSource) GetName() string { return "scripted" }

func (s *scriptedSource) GetRoundResult(ctx context.Context, round int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[round]++
	queue := s.responses[round]
	if len(queue) == 0 {
		return []byte(`{"returnValue":"fail"}`), nil
	}
	r := queue[0]
	if len(queue) > 1 {
		s.responses[round] = queue[1:]
	}
	if r.err != nil {
		return nil, r.err
	}
	return []byte(r.body), nil
}

func (s *scriptedSource) callCount(round int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[round]
}

func issuerJSON(round int, date string, nums [6]int, bonus int) string {
	return fmt.Sprintf(`{"returnValue":"success","drwNo":%d,"drwNoDate":%q,`+
		`"drwtNo1":%d,"drwtNo2":%d,"drwtNo3":%d,"drwtNo4":%d,"drwtNo5":%d,"drwtNo6":%d,`+
		`"bnusNo":%d,"firstWinamnt":2147483000,"firstPrzwnerCo":12,"totSellamnt":111840714000}`,
		round, date, nums[0], nums[1], nums[2], nums[3], nums[4], nums[5], bonus)
}
