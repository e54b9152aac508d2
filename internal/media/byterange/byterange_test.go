package byterange

import (
	"errors"
	"testing"
)

func TestResolve(t *testing.T) {
	const total = 3 << 20

	cases := []struct {
		name    string
		header  string
		total   int64
		wantOK  bool
		want    Range
		wantErr error
	}{
		{name: "no header", header: "", total: total},
		{name: "explicit window", header: "bytes=1048576-2097151", total: total, wantOK: true, want: Range{1048576, 2097151}},
		{name: "open end", header: "bytes=100-", total: total, wantOK: true, want: Range{100, total - 1}},
		{name: "open start", header: "bytes=-99", total: total, wantOK: true, want: Range{0, 99}},
		{name: "both open", header: "bytes=-", total: total, wantOK: true, want: Range{0, total - 1}},
		{name: "single byte", header: "bytes=0-0", total: total, wantOK: true, want: Range{0, 0}},
		{name: "last byte", header: "bytes=3145727-3145727", total: total, wantOK: true, want: Range{total - 1, total - 1}},
		{name: "end clamped", header: "bytes=10-99999999", total: total, wantOK: true, want: Range{10, total - 1}},
		{name: "whitespace and case", header: "  Bytes= 5 - 9 ", total: total, wantOK: true, want: Range{5, 9}},
		{name: "start at size", header: "bytes=3145728-", total: total, wantErr: ErrUnsatisfiable},
		{name: "start past size", header: "bytes=5000000-5000001", total: total, wantErr: ErrUnsatisfiable},
		{name: "start after end", header: "bytes=10-5", total: total, wantErr: ErrUnsatisfiable},
		{name: "empty file", header: "bytes=0-", total: 0, wantErr: ErrUnsatisfiable},
		{name: "wrong unit", header: "items=0-1", total: total, wantErr: ErrMalformed},
		{name: "no dash", header: "bytes=10", total: total, wantErr: ErrMalformed},
		{name: "non numeric", header: "bytes=a-b", total: total, wantErr: ErrMalformed},
		{name: "negative", header: "bytes=-5-10", total: total, wantErr: ErrMalformed},
		{name: "plus sign", header: "bytes=+5-10", total: total, wantErr: ErrMalformed},
		{name: "multi range", header: "bytes=0-1,5-6", total: total, wantErr: ErrMalformed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok, err := Resolve(tc.header, tc.total)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Expected error %v, got %v", tc.wantErr, err)
				}
				if ok {
					t.Fatal("Expected ok=false on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if ok != tc.wantOK {
				t.Fatalf("Expected ok=%v, got %v", tc.wantOK, ok)
			}
			if ok && got != tc.want {
				t.Fatalf("Expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestResolve_InvariantHoldsForAllValidWindows(t *testing.T) {
	const total = 64
	for start := int64(0); start < total; start++ {
		for end := start; end < total; end++ {
			header := "bytes=" + itoa(start) + "-" + itoa(end)
			r, ok, err := Resolve(header, total)
			if err != nil || !ok {
				t.Fatalf("%s: unexpected err=%v ok=%v", header, err, ok)
			}
			if r.Start != start || r.End != end || r.Length() != end-start+1 {
				t.Fatalf("%s: got %+v", header, r)
			}
		}
	}
}

func TestContentRangeFormatting(t *testing.T) {
	r := Range{Start: 1048576, End: 2097151}
	if got := r.ContentRange(3145728); got != "bytes 1048576-2097151/3145728" {
		t.Fatalf("Unexpected Content-Range: %s", got)
	}
	if got := UnsatisfiedContentRange(42); got != "bytes */42" {
		t.Fatalf("Unexpected unsatisfied Content-Range: %s", got)
	}
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
