// internal/tracking/tracker_fuzz_test.go
package tracking

import (
	"regexp"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
)

type fuzzRequest struct {
	URL       string
	Timestamp int64
}

// FuzzHasRequestSince checks the query against a straightforward model of the log.
func FuzzHasRequestSince(f *testing.F) {
	f.Add([]byte("seed"))
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)

		var reqs []fuzzRequest
		if err := consumer.CreateSlice(&reqs); err != nil {
			return
		}
		pattern, err := consumer.GetString()
		if err != nil {
			return
		}
		since, err := consumer.GetInt()
		if err != nil {
			return
		}

		clock := newManualClock(0)
		tr := New(WithClock(clock))
		tr.Attach()
		for _, r := range reqs {
			clock.Set(r.Timestamp)
			tr.RecordStart(RequestConfig{URL: r.URL})
		}

		got, err := tr.HasRequestSince(pattern, int64(since))
		re, compileErr := regexp.Compile(pattern)
		if compileErr != nil {
			if err == nil {
				t.Fatalf("pattern %q should fail to compile", pattern)
			}
			return
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := false
		for _, rec := range tr.Records() {
			if rec.Timestamp > int64(since) && re.MatchString(rec.URL) {
				want = true
				break
			}
		}
		if got != want {
			t.Fatalf("HasRequestSince(%q, %d) = %v, want %v", pattern, since, got, want)
		}
	})
}
