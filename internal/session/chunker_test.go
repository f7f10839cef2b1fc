package session

import (
	"strings"
	"testing"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/model"
)

func msg(role, content string, offsetSeconds int) model.SessionMessage {
	return model.SessionMessage{
		Role:      role,
		Content:   content,
		Timestamp: time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC).Add(time.Duration(offsetSeconds) * time.Second),
	}
}

func TestBuildChunksGroupsUntilTargetTokens(t *testing.T) {
	counter := newTokenCounter()
	long := strings.Repeat("word ", 200)
	msgs := []model.SessionMessage{
		msg("user", long, 0),
		msg("assistant", long, 1),
		msg("user", "short reply", 2),
	}

	drafts := buildChunks(msgs, 0, counter, DefaultTargetTokens, DefaultOverlapTokens)
	if len(drafts) == 0 {
		t.Fatal("expected at least one chunk")
	}
	if !strings.Contains(drafts[0].content, "user:") {
		t.Errorf("expected first chunk to include formatted role prefix, got %q", drafts[0].content[:20])
	}
}

func TestBuildChunksCarriesOverlapBetweenChunks(t *testing.T) {
	counter := newTokenCounter()
	long := strings.Repeat("word ", 400)
	msgs := []model.SessionMessage{
		msg("user", long, 0),
		msg("assistant", long, 1),
		msg("user", long, 2),
		msg("assistant", long, 3),
	}

	drafts := buildChunks(msgs, 0, counter, DefaultTargetTokens, DefaultOverlapTokens)
	if len(drafts) < 2 {
		t.Fatalf("expected multiple chunks from a long transcript, got %d", len(drafts))
	}
	// The second chunk should start with content carried from the tail
	// of the first chunk's consumed messages, not lose all prior context.
	if drafts[1].content == "" {
		t.Fatal("second chunk has no content")
	}
	if !drafts[1].startTime.Timestamp.Equal(msgs[0].Timestamp) {
		t.Fatalf("expected second chunk to start with the carried-over first message, got start %v", drafts[1].startTime.Timestamp)
	}
}

func TestBuildChunksSingleShortMessageYieldsOneChunk(t *testing.T) {
	counter := newTokenCounter()
	msgs := []model.SessionMessage{msg("user", "hi", 0)}

	drafts := buildChunks(msgs, 7, counter, DefaultTargetTokens, DefaultOverlapTokens)
	if len(drafts) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(drafts))
	}
}

func TestBuildChunksEmptyInputYieldsNoChunks(t *testing.T) {
	counter := newTokenCounter()
	if drafts := buildChunks(nil, 0, counter, DefaultTargetTokens, DefaultOverlapTokens); drafts != nil {
		t.Fatalf("expected nil, got %+v", drafts)
	}
}

func TestBuildChunksSingleHugeMessageStillMakesProgress(t *testing.T) {
	counter := newTokenCounter()
	huge := strings.Repeat("word ", 5000)
	msgs := []model.SessionMessage{msg("user", huge, 0), msg("assistant", "ok", 1)}

	drafts := buildChunks(msgs, 0, counter, DefaultTargetTokens, DefaultOverlapTokens)
	if len(drafts) == 0 {
		t.Fatal("expected progress even when a single message exceeds the target window")
	}
}

func TestTrailingOverlapRespectsMaxOverlapMessages(t *testing.T) {
	counter := newTokenCounter()
	msgs := []model.SessionMessage{
		msg("user", "one", 0),
		msg("assistant", "two", 1),
		msg("user", "three", 2),
		msg("assistant", "four", 3),
	}
	overlap := trailingOverlap(msgs, counter, DefaultOverlapTokens)
	if len(overlap) > MaxOverlapMessages {
		t.Fatalf("expected at most %d overlap messages, got %d", MaxOverlapMessages, len(overlap))
	}
}
