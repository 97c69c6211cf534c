package contextcard

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSummarizeTextShortUsedAsIs(t *testing.T) {
	req := Request{Role: "message", Content: "hello there"}
	summary, err := HeuristicSummarizer{}.Summarize(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "hello there", summary)
}

func TestSummarizeToolResultUsesFirstLine(t *testing.T) {
	content := strings.Repeat("x", 250) + "\nfull payload follows below"
	req := Request{Role: "tool_result", Content: "status: ok\n" + content}
	summary, err := HeuristicSummarizer{}.Summarize(context.Background(), req)
	require.NoError(t, err)
	require.Contains(t, summary, "status: ok")
}

func TestSummarizeDictEnumeratesKeys(t *testing.T) {
	req := Request{Role: "tool", Content: map[string]any{"status": "ok", "count": 3}}
	summary, err := HeuristicSummarizer{}.Summarize(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "{count, status}", summary)
}

func TestSummarizeLongTextTruncates(t *testing.T) {
	content := strings.Repeat("word ", 100)
	req := Request{Role: "message", Content: content}
	summary, err := HeuristicSummarizer{}.Summarize(context.Background(), req)
	require.NoError(t, err)
	require.True(t, len([]rune(summary)) <= shortMessageThreshold+3)
}

func TestTokenEstimateApproximatesFourCharsPerToken(t *testing.T) {
	require.Equal(t, 3, TokenEstimate("twelve chars"))
}

func TestExtractKeywordsFiltersShortWordsAndStopwords(t *testing.T) {
	kws := ExtractKeywords("this cascade routes tool calls with structured payloads")
	require.Contains(t, kws, "cascade")
	require.Contains(t, kws, "routes")
	require.Contains(t, kws, "structured")
	require.Contains(t, kws, "payloads")
	require.NotContains(t, kws, "this")
	require.NotContains(t, kws, "with")
}

func TestExtractKeywordsDedupsAndCaps(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 30; i++ {
		sb.WriteString("uniqueword")
		sb.WriteString(strings.Repeat("z", i%3))
		sb.WriteString(" ")
	}
	kws := ExtractKeywords(sb.String())
	require.LessOrEqual(t, len(kws), maxKeywords)
}
