package core

import "context"

func fromSlice[T any](items []T) Stream[T] {
	return Emit(func(ctx context.Context) <-chan Result[T] {
		out := make(chan Result[T])
		go func() {
			defer close(out)
			for _, item := range items {
				if !Send(ctx, out, Ok(item)) {
					return
				}
			}
		}()
		return out
	})
}

func fromResults[T any](results ...Result[T]) Stream[T] {
	return Emit(func(ctx context.Context) <-chan Result[T] {
		out := make(chan Result[T], len(results))
		for _, r := range results {
			out <- r
		}
		close(out)
		return out
	})
}
