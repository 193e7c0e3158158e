package rng

// Choice returns a uniformly chosen element of xs.
func Choice[T any](g *Generator, xs []T) (T, error) {
	var zero T
	if len(xs) == 0 {
		return zero, &EmptyInputError{Op: "Choice"}
	}
	i, err := g.NextInt(0, len(xs)-1)
	if err != nil {
		return zero, err
	}
	return xs[i], nil
}

// Shuffle returns a permuted copy of xs using Fisher-Yates from the end.
// It consumes exactly len(xs)-1 draws (none for empty input).
func Shuffle[T any](g *Generator, xs []T) []T {
	out := make([]T, len(xs))
	copy(out, xs)
	ShuffleInPlace(g, out)
	return out
}

// ShuffleInPlace permutes xs in place with the same draw sequence as Shuffle.
func ShuffleInPlace[T any](g *Generator, xs []T) {
	for i := len(xs) - 1; i > 0; i-- {
		j, _ := g.NextInt(0, i)
		xs[i], xs[j] = xs[j], xs[i]
	}
}

// Sample returns n elements of xs chosen without replacement: the first n of
// a full shuffle.
func Sample[T any](g *Generator, xs []T, n int) ([]T, error) {
	if n < 0 || n > len(xs) {
		return nil, rangeErrorf("Sample", "cannot take %d of %d elements", n, len(xs))
	}
	return Shuffle(g, xs)[:n], nil
}
