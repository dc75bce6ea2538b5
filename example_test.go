package baton_test

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/creachadair/baton"
)

func ExampleNew() {
	s, r := baton.New("apple")
	ctx := context.Background()

	// The first call to Next reports the initial value.
	v, err := r.Next(ctx)
	if err != nil {
		log.Fatalf("Next: %v", err)
	}
	fmt.Println(v)

	// Values sent while the receiver is not looking are coalesced, and only
	// the latest is reported.
	s.Send("pear")
	s.Send("plum")
	s.Send("cherry")
	v, _ = r.Next(ctx)
	fmt.Println(v)

	// A value sent before the sender closes is still delivered.
	s.Send("quince")
	s.Close()
	v, _ = r.Next(ctx)
	fmt.Println(v)

	// After that, the stream has ended.
	if _, err := r.Next(ctx); errors.Is(err, baton.ErrEnded) {
		fmt.Println("no more values")
	}

	// Output:
	// apple
	// cherry
	// quince
	// no more values
}

func ExampleSendError() {
	s, r := baton.New(0)
	r.Close()

	// Nobody is listening, so the send fails and hands back the value.
	err := s.Send(25)
	var serr *baton.SendError[int]
	if errors.As(err, &serr) {
		fmt.Printf("closed: %v, rejected %d\n", errors.Is(err, baton.ErrClosed), serr.Value)
	}

	// Output:
	// closed: true, rejected 25
}

func ExampleReceiver_Seq() {
	s, r := baton.New(0, baton.SkipInitial())
	ack, acked := baton.New(0, baton.SkipInitial())

	go func() {
		defer s.Close()
		ctx := context.Background()

		// Wait for each value to be acknowledged before sending the next, so
		// the receiver does not skip any.
		for v := 1; v <= 4; v++ {
			s.Send(v)
			if _, err := acked.Next(ctx); err != nil {
				return
			}
		}
	}()

	var sum int
	for v := range r.Seq(context.Background()) {
		sum += v
		ack.Send(v)
	}
	fmt.Println(sum)

	// Output:
	// 10
}
