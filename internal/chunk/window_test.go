package chunk

import (
	"errors"
	"testing"
)

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestWindows_Recurrence(t *testing.T) {
	// 1000 tokens, window 500, overlap 60 -> [0,500), [440,940), [880,1000)
	got, err := Windows(seq(1000), 500, 60)
	if err != nil {
		t.Fatalf("Windows() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(windows) = %d, want 3", len(got))
	}
	wantStarts := []int{0, 440, 880}
	wantLens := []int{500, 500, 120}
	for i := range got {
		if got[i][0] != wantStarts[i] {
			t.Errorf("window %d starts at %d, want %d", i, got[i][0], wantStarts[i])
		}
		if len(got[i]) != wantLens[i] {
			t.Errorf("window %d has length %d, want %d", i, len(got[i]), wantLens[i])
		}
	}
}

func TestWindows_CoverageAndOverlap(t *testing.T) {
	cases := []struct {
		n, w, v int
	}{
		{0, 10, 0},
		{1, 10, 3},
		{10, 10, 3},
		{11, 10, 3},
		{100, 7, 2},
		{1000, 500, 60},
		{513, 500, 0},
	}
	for _, tc := range cases {
		got, err := Windows(seq(tc.n), tc.w, tc.v)
		if err != nil {
			t.Fatalf("Windows(n=%d,w=%d,v=%d) error = %v", tc.n, tc.w, tc.v, err)
		}
		if tc.n == 0 {
			if len(got) != 0 {
				t.Errorf("n=0: got %d windows, want 0", len(got))
			}
			continue
		}
		if got[0][0] != 0 {
			t.Errorf("n=%d: first window starts at %d, want 0", tc.n, got[0][0])
		}
		last := got[len(got)-1]
		if last[len(last)-1] != tc.n-1 {
			t.Errorf("n=%d: last window ends at %d, want %d", tc.n, last[len(last)-1], tc.n-1)
		}
		for i, win := range got {
			if len(win) > tc.w {
				t.Errorf("n=%d: window %d has length %d > %d", tc.n, i, len(win), tc.w)
			}
			if i == 0 {
				continue
			}
			prev := got[i-1]
			// consecutive windows overlap by exactly v except the last,
			// which is clamped and may overlap more
			overlap := prev[0] + len(prev) - win[0]
			if i < len(got)-1 && overlap != tc.v {
				t.Errorf("n=%d: windows %d/%d overlap by %d, want %d", tc.n, i-1, i, overlap, tc.v)
			}
			if overlap < tc.v {
				t.Errorf("n=%d: windows %d/%d overlap by %d, want >= %d", tc.n, i-1, i, overlap, tc.v)
			}
			if win[0] > prev[0]+len(prev) {
				t.Errorf("n=%d: gap between windows %d and %d", tc.n, i-1, i)
			}
		}
	}
}

func TestWindows_SingleWindow(t *testing.T) {
	got, err := Windows(seq(5), 10, 3)
	if err != nil {
		t.Fatalf("Windows() error = %v", err)
	}
	if len(got) != 1 || len(got[0]) != 5 {
		t.Fatalf("got %d windows (first len %d), want one window of 5", len(got), len(got[0]))
	}
}

func TestWindows_InvalidParams(t *testing.T) {
	if _, err := Windows(seq(10), 0, 0); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("window=0: err = %v, want ErrInvalidWindow", err)
	}
	if _, err := Windows(seq(10), -1, 0); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("window=-1: err = %v, want ErrInvalidWindow", err)
	}
	if _, err := Windows(seq(10), 5, 5); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("overlap==window: err = %v, want ErrInvalidWindow", err)
	}
	if _, err := Windows(seq(10), 5, -1); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("overlap<0: err = %v, want ErrInvalidWindow", err)
	}
}
