package identity

import "testing"

func TestParseAcceptsWellFormedNames(t *testing.T) {
	id, err := Parse("/ingest/abc123_evt1_170000000.mp4")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.StreamID != "abc123" || id.EventID != "evt1" || id.Timestamp != "170000000" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestParseFoldsExtraUnderscoresIntoTimestamp(t *testing.T) {
	id, err := Parse("stream_evt_1700_part2.mkv")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.Timestamp != "1700_part2" {
		t.Fatalf("expected suffix folded into timestamp, got %q", id.Timestamp)
	}
}

func TestParseRejectsMalformedNames(t *testing.T) {
	for _, name := range []string{
		"randomfile.mp4",
		"onlyone_segment.mp4",
		"_evt_1700.mp4",
		"stream__1700.mp4",
		"stream_evt_.mp4",
	} {
		if _, err := Parse(name); err == nil {
			t.Fatalf("expected %q to be rejected", name)
		}
	}
}

func TestAllowedExtension(t *testing.T) {
	cases := map[string]bool{
		"a_b_c.mp4":  true,
		"a_b_c.MKV":  true,
		"a_b_c.webm": true,
		"a_b_c.txt":  false,
		"a_b_c":      false,
		"a_b_c.m3u8": false,
	}
	for path, want := range cases {
		if got := AllowedExtension(path); got != want {
			t.Fatalf("AllowedExtension(%q) = %v, want %v", path, got, want)
		}
	}
}
