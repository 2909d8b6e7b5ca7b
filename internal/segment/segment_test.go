package segment

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/riverglass/httpcore/internal/model"
)

// fakeDoer answers every request with a 206 slice of body carved out
// according to the Range header it was sent, simulating a range-serving
// origin without a real socket.
type fakeDoer struct {
	body []byte
	hits atomic.Int32
}

func (f *fakeDoer) Do(ctx context.Context, req *model.Request) (*model.Response, error) {
	f.hits.Add(1)
	rangeHeader := req.Header.Get("Range")
	start, end, err := parseRangeHeader(rangeHeader, len(f.body))
	if err != nil {
		return nil, err
	}
	return &model.Response{StatusCode: 206, Body: f.body[start : end+1]}, nil
}

func parseRangeHeader(h string, total int) (start, end int, err error) {
	h = strings.TrimPrefix(h, "bytes=")
	parts := strings.SplitN(h, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("bad range header %q", h)
	}
	if start, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, err
	}
	if parts[1] == "" {
		return start, total - 1, nil
	}
	end, err = strconv.Atoi(parts[1])
	return start, end, err
}

func TestPartitionEvenSplit(t *testing.T) {
	ranges := partition(100, 4)
	if len(ranges) != 4 {
		t.Fatalf("len(ranges) = %d, want 4", len(ranges))
	}
	if ranges[0].header() != "bytes=0-24" {
		t.Fatalf("ranges[0] = %s", ranges[0].header())
	}
	if !ranges[3].openEnded {
		t.Fatal("expected last range to be open-ended")
	}
}

func TestPartitionNotDivisible(t *testing.T) {
	ranges := partition(10, 3)
	if len(ranges) != 3 {
		t.Fatalf("len(ranges) = %d, want 3", len(ranges))
	}
	if !ranges[2].openEnded {
		t.Fatal("expected last range open-ended to absorb the remainder")
	}
}

func TestDownloadReassemblesInOrder(t *testing.T) {
	body := []byte("0123456789abcdefghijklmnopqrstuvwxyz")
	doer := &fakeDoer{body: body}

	out, err := Download(context.Background(), "http://example/file", Probe{
		ContentLength: int64(len(body)),
		AcceptsRanges: true,
	}, 4, func() Doer { return doer })
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(out) != string(body) {
		t.Fatalf("Download = %q, want %q", out, body)
	}
}

func TestDownloadFailsOpenWithoutRangeSupport(t *testing.T) {
	_, err := Download(context.Background(), "http://example/file", Probe{
		ContentLength: 100,
		AcceptsRanges: false,
	}, 4, func() Doer { return &fakeDoer{} })
	if err != ErrRangesNotSupported {
		t.Fatalf("err = %v, want ErrRangesNotSupported", err)
	}
}

// failingDoer always answers 500, simulating a segment that never
// recovers across all of its retries.
type failingDoer struct{}

func (failingDoer) Do(ctx context.Context, req *model.Request) (*model.Response, error) {
	return &model.Response{StatusCode: 500}, nil
}

// TestDownloadFillsEmptyPartOnPersistentSegmentFailure matches
// original_source/src/main.cpp's parallel_download: a segment that
// exhausts its retries contributes an empty part, but the download
// still joins every worker and returns the concatenated (here,
// gappy) result instead of discarding everything and erroring out.
func TestDownloadFillsEmptyPartOnPersistentSegmentFailure(t *testing.T) {
	out, err := Download(context.Background(), "http://example/file", Probe{
		ContentLength: 10,
		AcceptsRanges: true,
	}, 2, func() Doer { return failingDoer{} })
	if err != nil {
		t.Fatalf("Download: %v, want nil error even though every segment failed", err)
	}
	if len(out) != 0 {
		t.Fatalf("Download = %q, want empty result (every segment failed)", out)
	}
}

// partialFailureDoer fails every request for one specific Range header
// and serves every other range normally, so Download's result should
// be the full body with exactly that one segment's bytes missing.
type partialFailureDoer struct {
	body       []byte
	failHeader string
}

func (f *partialFailureDoer) Do(ctx context.Context, req *model.Request) (*model.Response, error) {
	rangeHeader := req.Header.Get("Range")
	if rangeHeader == f.failHeader {
		return &model.Response{StatusCode: 500}, nil
	}
	start, end, err := parseRangeHeader(rangeHeader, len(f.body))
	if err != nil {
		return nil, err
	}
	return &model.Response{StatusCode: 206, Body: f.body[start : end+1]}, nil
}

func TestDownloadLeavesGapForOneFailedSegmentAmongOthers(t *testing.T) {
	body := []byte("0123456789abcdefghijklmnopqrstuvwxyz")
	doer := &partialFailureDoer{body: body, failHeader: "bytes=0-8"}

	out, err := Download(context.Background(), "http://example/file", Probe{
		ContentLength: int64(len(body)),
		AcceptsRanges: true,
	}, 4, func() Doer { return doer })
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	want := body[9:]
	if string(out) != string(want) {
		t.Fatalf("Download = %q, want %q (first segment empty, rest concatenated)", out, want)
	}
}
