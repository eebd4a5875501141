package invalidate_test

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/reqpipe/cache"
	"github.com/jonwraymond/reqpipe/invalidate"
)

func ExampleResolver_Families() {
	r := invalidate.NewResolver("Issue", "Project", "Sprint")

	fmt.Println(r.Families("/api/Issues/project/42?include=Sprint"))
	fmt.Println(r.Families("/api/IssueComments/3"))
	fmt.Println(r.Families("/api/users/me"))
	// Output:
	// [Issue Project]
	// [Issue]
	// []
}

func ExampleInvalidator_OnMutation() {
	store := cache.NewStore(cache.StoreConfig{})
	store.Set("GET:/api/Issues/project/42", []byte("[]"), time.Minute)
	store.Set("GET:/api/Sprint/1", []byte("{}"), time.Minute)

	inv := invalidate.New(invalidate.Config{
		Resolver: invalidate.NewResolver("Issue", "Sprint"),
		Store:    store,
	})

	res := inv.OnMutation(context.Background(), "/api/Issue/7")
	fmt.Println("families:", res.Families)
	fmt.Println("removed:", res.Removed)
	fmt.Println("remaining:", store.Stats().Keys)
	// Output:
	// families: [Issue]
	// removed: [GET:/api/Issues/project/42]
	// remaining: [GET:/api/Sprint/1]
}
