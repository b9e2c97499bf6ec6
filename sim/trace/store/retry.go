package store

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"modernc.org/sqlite"
)

// Primary and extended SQLite result codes worth another attempt. A watch
// loop importing runs while `trace show` reads the same index hits these
// when busy_timeout runs out.
const (
	codeBusy           = 5
	codeLocked         = 6
	codeIOErrShortRead = 522
)

// retryPolicy bounds how long one kind of store operation keeps retrying.
type retryPolicy struct {
	op       string
	attempts int
	base     time.Duration
	max      time.Duration
}

var (
	// importPolicy covers whole-journal transactions, which hold the write
	// lock longest and so wait longest for it.
	importPolicy = retryPolicy{op: "import", attempts: 5, base: 100 * time.Millisecond, max: 2 * time.Second}
	deletePolicy = retryPolicy{op: "delete", attempts: 3, base: 25 * time.Millisecond, max: 250 * time.Millisecond}
)

// contended reports whether err means another connection held the database.
func contended(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code&0xff == codeBusy || code&0xff == codeLocked || code == codeIOErrShortRead
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

// delay is base doubled per attempt, capped at max, plus up to base of jitter
// so concurrent importers do not retry in lockstep.
func (p retryPolicy) delay(attempt int) time.Duration {
	d := p.base << uint(attempt)
	if d > p.max || d <= 0 {
		d = p.max
	}
	return d + time.Duration(rand.Int63n(int64(p.base)))
}

// withRetry runs fn until it succeeds, fails for a reason other than
// contention, or p runs out of attempts.
func (s *Store) withRetry(p retryPolicy, fn func() error) error {
	var err error
	for attempt := 0; attempt < p.attempts; attempt++ {
		if err = fn(); !contended(err) {
			return err
		}
		if attempt == p.attempts-1 {
			break
		}
		d := p.delay(attempt)
		logrus.Debugf("store %s contended (attempt %d/%d), retrying in %s: %v", p.op, attempt+1, p.attempts, d, err)
		s.sleep(d)
	}
	return fmt.Errorf("%s: database still locked after %d attempts: %w", p.op, p.attempts, err)
}
