package stream

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/justapithecus/sluice/eventloop"
	"github.com/justapithecus/sluice/log"
	"github.com/justapithecus/sluice/promise"
)

func TestFilter_ForwardsMatchingSubsequence(t *testing.T) {
	l := eventloop.New()
	src := OfSlice(l, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	filtered := TransformWith(l, src, Filter(l, func(v int) bool { return v%2 == 0 }))
	con := ToList[int](l)

	var got []int
	gotSet := false
	con.Result().WhenResult(func(items []int) {
		got = items
		gotSet = true
	})
	StreamTo(l, filtered, con)
	l.Run()

	if !gotSet {
		t.Fatal("result promise did not complete")
	}
	want := []int{2, 4, 6, 8, 10}
	if len(got) != len(want) {
		t.Fatalf("items = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("items = %v, want %v", got, want)
		}
	}
	if src.State() != EndOfStream || con.State() != EndOfStream {
		t.Errorf("states = %v/%v, want EndOfStream/EndOfStream", src.State(), con.State())
	}
}

func TestFilter_DroppingEveryItemStillCompletes(t *testing.T) {
	l := eventloop.New()
	src := OfSlice(l, 1, 3, 5, 7)
	filtered := TransformWith(l, src, Filter(l, func(v int) bool { return v%2 == 0 }))
	con := ToList[int](l)

	completed := false
	StreamTo(l, filtered, con).WhenResult(func(promise.Void) { completed = true })
	l.Run()

	if !completed {
		t.Fatal("stream with every item dropped did not complete")
	}
	if len(con.Items()) != 0 {
		t.Fatalf("items = %v, want none", con.Items())
	}
}

func TestFilter_DownstreamRejectionClosesFilterAndSource(t *testing.T) {
	l := eventloop.New()
	boom := errors.New("consumer refused")
	src := OfSlice(l, 1, 2, 3, 4, 5, 6, 7, 8)
	tr := Filter(l, func(v int) bool { return v%2 == 0 })

	var got []int
	con := ConsumerOf(l, func(v int) *promise.Promise[promise.Void] {
		if v == 6 {
			return promise.OfError[promise.Void](l, boom)
		}
		got = append(got, v)
		return promise.Of(l, promise.Void{})
	})

	var pumpErr error
	StreamTo(l, TransformWith(l, src, tr), con).WhenException(func(err error) { pumpErr = err })
	l.Run()

	if !errors.Is(pumpErr, boom) {
		t.Fatalf("pump error = %v, want %v", pumpErr, boom)
	}
	if tr.State() != ClosedWithError || !errors.Is(tr.Error(), boom) {
		t.Errorf("transformer state = %v err = %v, want ClosedWithError %v",
			tr.State(), tr.Error(), boom)
	}
	if src.State() != ClosedWithError || !errors.Is(src.Error(), boom) {
		t.Errorf("source state = %v err = %v, want ClosedWithError %v",
			src.State(), src.Error(), boom)
	}
	if len(got) != 2 || got[0] != 2 || got[1] != 4 {
		t.Errorf("items accepted before the rejection = %v, want [2 4]", got)
	}
}

func TestFilter_SuspendingConsumerPreservesOrder(t *testing.T) {
	l := eventloop.New()
	src := OfSlice(l, 1, 2, 3, 4, 5, 6)
	filtered := TransformWith(l, src, Filter(l, func(v int) bool { return v != 4 }))

	var got []int
	con := ConsumerOf(l, func(v int) *promise.Promise[promise.Void] {
		ack := promise.New[promise.Void](l)
		// Acknowledge two ticks later to exercise a consumer slower
		// than its upstream.
		l.Post(func() {
			l.Post(func() {
				got = append(got, v)
				ack.Complete(promise.Void{})
			})
		})
		return ack
	})

	completed := false
	StreamTo(l, filtered, con).WhenResult(func(promise.Void) { completed = true })
	l.Run()

	if !completed {
		t.Fatal("stream did not complete")
	}
	want := []int{1, 2, 3, 5, 6}
	if len(got) != len(want) {
		t.Fatalf("items = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("items = %v, want %v", got, want)
		}
	}
}

func TestMapper_TransformsEveryItem(t *testing.T) {
	l := eventloop.New()
	src := OfSlice(l, "a", "bb", "ccc")
	mapped := TransformWith(l, src, Mapper(l, func(s string) int { return len(s) }))
	con := ToList[int](l)

	StreamTo(l, mapped, con)
	l.Run()

	items := con.Items()
	if len(items) != 3 || items[0] != 1 || items[1] != 2 || items[2] != 3 {
		t.Fatalf("items = %v, want [1 2 3]", items)
	}
}

func TestConsumerTransformWith_FiltersBeforeTheConsumer(t *testing.T) {
	l := eventloop.New()
	list := ToList[int](l)
	front := ConsumerTransformWith(l, Filter(l, func(v int) bool { return v > 2 }), list)

	completed := false
	StreamTo(l, OfSlice(l, 1, 2, 3, 4), front).WhenResult(func(promise.Void) { completed = true })
	l.Run()

	if !completed {
		t.Fatal("stream did not complete")
	}
	items := list.Items()
	if len(items) != 2 || items[0] != 3 || items[1] != 4 {
		t.Fatalf("items = %v, want [3 4]", items)
	}
}

func TestTransformer_LaterCloseErrorIsTraced(t *testing.T) {
	var buf bytes.Buffer
	l := eventloop.New(eventloop.WithLogger(log.NewNop().WithOutput(&buf)))
	first := errors.New("first failure")
	tr := Mapper(l, func(v int) int { return v })

	tr.Output().CloseWithError(first)
	tr.Input().CloseWithError(errors.New("late failure"))

	if !errors.Is(tr.Error(), first) {
		t.Fatalf("node error = %v, want the first error", tr.Error())
	}
	out := buf.String()
	if !strings.Contains(out, "suppressed error") || !strings.Contains(out, "late failure") {
		t.Fatalf("debug trace = %q, want the suppressed late failure", out)
	}
}

func TestTransformer_UpstreamErrorReachesConsumer(t *testing.T) {
	l := eventloop.New()
	boom := errors.New("upstream collapsed")
	tr := Mapper(l, func(v int) int { return v })
	con := ToList[int](l)

	var resultErr error
	con.Result().WhenException(func(err error) { resultErr = err })
	StreamTo(l, TransformWith(l, ClosingWithError[int](l, boom), tr), con)
	l.Run()

	if !errors.Is(resultErr, boom) {
		t.Fatalf("result error = %v, want %v", resultErr, boom)
	}
	if tr.State() != ClosedWithError || !errors.Is(tr.Error(), boom) {
		t.Errorf("transformer state = %v err = %v, want ClosedWithError %v",
			tr.State(), tr.Error(), boom)
	}
}
