package inflight_test

import (
	"context"
	"fmt"

	"github.com/jonwraymond/reqpipe/inflight"
)

func ExampleGroup_AcquireOrJoin() {
	g := inflight.NewGroup()

	leader := g.AcquireOrJoin("GET:/api/Issue/7")
	follower := g.AcquireOrJoin("GET:/api/Issue/7")
	fmt.Println(leader.Role(), follower.Role())

	follower.OnSettle(func(o inflight.Outcome) {
		fmt.Printf("settled for %d callers\n", o.Waiters)
	})
	_ = leader.Settle([]byte(`{"id":7}`), nil)

	v, err := follower.Wait(context.Background())
	fmt.Println(string(v), err)
	fmt.Println("pending:", g.InFlight())
	// Output:
	// leader follower
	// settled for 2 callers
	// {"id":7} <nil>
	// pending: 0
}
