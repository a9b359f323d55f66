package chunk

import "errors"

// ErrInvalidWindow reports window parameters under which the windower
// cannot make forward progress.
var ErrInvalidWindow = errors.New("chunk: window must be > 0 and overlap must be < window")

// Windows splits tokens into contiguous slices of length <= window.
// Consecutive slices overlap by exactly overlap tokens, except the final
// slice which is clamped to the end of the sequence and may be shorter (and
// overlap more). The returned slices alias the input.
func Windows(tokens []int, window, overlap int) ([][]int, error) {
	if window <= 0 || overlap < 0 || overlap >= window {
		return nil, ErrInvalidWindow
	}

	n := len(tokens)
	var out [][]int
	for i := 0; i < n; {
		j := i + window
		if j > n {
			j = n
		}
		out = append(out, tokens[i:j])
		if j >= n {
			break
		}
		i = j - overlap
	}
	return out, nil
}
