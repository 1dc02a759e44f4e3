package testutil

import (
	"errors"
	"sync"

	"bastion/internal/sentinel"
)

// ConcurrentResult counts how racing store calls ended, by sentinel category.
type ConcurrentResult struct {
	Successes  int32
	Locked     int32
	NotFounds  int32
	Duplicates int32
	Errors     int32
}

// Total returns the number of calls that ran.
func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Locked + r.NotFounds + r.Duplicates + r.Errors
}

func (r *ConcurrentResult) add(err error) {
	switch {
	case err == nil:
		r.Successes++
	case errors.Is(err, sentinel.ErrLocked):
		r.Locked++
	case errors.Is(err, sentinel.ErrNotFound):
		r.NotFounds++
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		r.Duplicates++
	default:
		r.Errors++
	}
}

// RunConcurrent calls fn from n goroutines released at the same instant and
// sorts the outcomes. Store tests use it to race lockout updates and
// single-use token consumption against each other.
func RunConcurrent(n int, fn func(idx int) error) *ConcurrentResult {
	res := &ConcurrentResult{}
	for _, err := range fanOut(n, fn) {
		res.add(err)
	}
	return res
}

// RunConcurrentCollect is RunConcurrent for callers that inspect domain error
// codes: it returns the success count and every non-nil error.
func RunConcurrentCollect(n int, fn func(idx int) error) (successes int32, errs []error) {
	for _, err := range fanOut(n, fn) {
		if err == nil {
			successes++
			continue
		}
		errs = append(errs, err)
	}
	return successes, errs
}

// fanOut runs fn(i) for i in [0, n) behind a start barrier and returns the
// results indexed by i.
func fanOut(n int, fn func(idx int) error) []error {
	results := make([]error, n)
	start := make(chan struct{})

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results[i] = fn(i)
		}()
	}
	close(start)
	wg.Wait()
	return results
}
