package session

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/amanmcp/internal/model"
)

// draft is a chunk under construction before embedding.
type draft struct {
	content    string
	startTime  model.SessionMessage
	endTime    model.SessionMessage
}

// buildChunks greedily groups newMessages (already sliced to
// messages[last_ingested_index:]) into ≈targetTokens windows with
// ≈overlapTokens of carry-over between consecutive chunks, per
// spec.md §4.10's algorithm. startChunkIndex is not used here: drafts
// carry no index, and callers assign chunk_index sequentially from the
// session's prior high-water mark.
func buildChunks(newMessages []model.SessionMessage, startChunkIndex int, counter *tokenCounter, targetTokens, overlapTokens int) []draft {
	if len(newMessages) == 0 {
		return nil
	}
	if targetTokens <= 0 {
		targetTokens = DefaultTargetTokens
	}
	if overlapTokens <= 0 {
		overlapTokens = DefaultOverlapTokens
	}

	var drafts []draft
	var overlapMsgs []model.SessionMessage

	idx := 0
	for idx < len(newMessages) {
		var included []model.SessionMessage
		included = append(included, overlapMsgs...)

		tokens := sumTokens(counter, overlapMsgs)
		consumed := 0
		for idx+consumed < len(newMessages) {
			msg := newMessages[idx+consumed]
			included = append(included, msg)
			tokens += counter.Count(formatMessage(msg))
			consumed++
			if tokens >= targetTokens {
				break
			}
		}
		if consumed == 0 {
			// Safety valve: always make progress even if a single
			// message alone exceeds the target.
			included = append(included, newMessages[idx])
			consumed = 1
		}

		drafts = append(drafts, draft{
			content:   joinMessages(included),
			startTime: included[0],
			endTime:   included[len(included)-1],
		})

		// Determine overlap carry for the next chunk: the trailing
		// messages of this chunk's newly-consumed portion (not the
		// carried-over overlap itself), up to MaxOverlapMessages,
		// whose cumulative token count approximates overlapTokens.
		consumedMsgs := newMessages[idx : idx+consumed]
		overlapMsgs = trailingOverlap(consumedMsgs, counter, overlapTokens)

		idx += consumed
	}

	return drafts
}

// trailingOverlap returns up to MaxOverlapMessages messages from the
// tail of msgs whose cumulative token count approximates target.
func trailingOverlap(msgs []model.SessionMessage, counter *tokenCounter, target int) []model.SessionMessage {
	var picked []model.SessionMessage
	tokens := 0
	for i := len(msgs) - 1; i >= 0 && len(picked) < MaxOverlapMessages; i-- {
		picked = append([]model.SessionMessage{msgs[i]}, picked...)
		tokens += counter.Count(formatMessage(msgs[i]))
		if tokens >= target {
			break
		}
	}
	return picked
}

func sumTokens(counter *tokenCounter, msgs []model.SessionMessage) int {
	total := 0
	for _, m := range msgs {
		total += counter.Count(formatMessage(m))
	}
	return total
}

func formatMessage(m model.SessionMessage) string {
	return fmt.Sprintf("%s: %s", m.Role, m.Content)
}

func joinMessages(msgs []model.SessionMessage) string {
	parts := make([]string, len(msgs))
	for i, m := range msgs {
		parts[i] = formatMessage(m)
	}
	return strings.Join(parts, "\n")
}
